// Package user はユーザー登録・認証・ロール管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/cryptoinsight/internal/model"
	"github.com/hitoshi/cryptoinsight/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// 入力検証・認証のエラー。
var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Service はユーザー管理のサービス層。
type Service struct {
	repo    repository.UserRepository
	cost    int
	timeout time.Duration
	logger  *slog.Logger
}

// NewService はServiceを生成する。costが0以下の場合はbcrypt.DefaultCostを使用する。
func NewService(repo repository.UserRepository, cost int, timeout time.Duration, logger *slog.Logger) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cost: cost, timeout: timeout, logger: logger}
}

// Register はユーザーを登録する。usernameが既に存在する場合はErrConflictとなる。
func (s *Service) Register(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 100 {
		return nil, ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	u := &model.User{Username: username, PasswordHash: string(hash), Role: role}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, u); err != nil {
		if !errors.Is(err, model.ErrConflict) {
			s.logger.Error("ユーザー登録に失敗しました",
				slog.String("username", username),
				slog.String("kind", model.FailureKind(err)),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("username", username),
		slog.String("role", string(role)),
	)
	return u, nil
}

// Authenticate はユーザー名とパスワードを検証し、ユーザーを返す。
// ユーザーが存在しない場合とパスワードが一致しない場合はどちらもErrInvalidCredentials。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.find(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ChangeRole はユーザーのロールを変更する。
func (s *Service) ChangeRole(ctx context.Context, username string, role model.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.UpdateRole(ctx, username, role); err != nil {
		return err
	}
	s.logger.Info("ロールを変更しました",
		slog.String("username", username),
		slog.String("role", string(role)),
	)
	return nil
}

// ChangePassword は現在のパスワードを確認してからパスワードを変更する。
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if _, err := s.Authenticate(ctx, username, current); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.repo.UpdatePasswordHash(ctx, username, string(hash))
}

func (s *Service) find(ctx context.Context, username string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		s.logger.Error("ユーザーの取得に失敗しました",
			slog.String("username", username),
			slog.String("kind", model.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return u, nil
}
