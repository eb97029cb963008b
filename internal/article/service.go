// Package article は発行者による記事の作成・公開・一覧を提供する。
package article

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/cryptoinsight/internal/model"
	"github.com/hitoshi/cryptoinsight/internal/repository"
	"github.com/hitoshi/cryptoinsight/internal/security"
)

// MaxTitleLength はタイトルの最大文字数。
const MaxTitleLength = 200

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// 入力検証のエラー。
var (
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = errors.New("title is too long")
	ErrContentRequired = errors.New("content is required")
	ErrAuthorRequired  = errors.New("author is required")
)

// Service は記事管理のサービス層。
type Service struct {
	repo      repository.ArticleRepository
	sanitizer security.ContentSanitizerService
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	repo repository.ArticleRepository,
	sanitizer security.ContentSanitizerService,
	timeout time.Duration,
	logger *slog.Logger,
) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sanitizer: sanitizer, timeout: timeout, logger: logger}
}

// Create は記事を作成する。publishがtrueの場合は公開状態で作成する。
// タイトルはタグを除去し、本文はサニタイズしてから保存する。
func (s *Service) Create(ctx context.Context, author, title, content string, publish bool) (*model.Article, error) {
	if author == "" {
		return nil, ErrAuthorRequired
	}
	title = s.sanitizer.PlainText(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, ErrTitleTooLong
	}
	content = s.sanitizer.Sanitize(content)
	if content == "" {
		return nil, ErrContentRequired
	}

	a := &model.Article{
		Title:   title,
		Content: content,
		Author:  author,
		Status:  model.ArticleDraft,
	}
	if publish {
		a.Status = model.ArticlePublished
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.Error("記事の作成に失敗しました",
			slog.String("author", author),
			slog.String("kind", model.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("記事を作成しました",
		slog.Int64("article_id", a.ID),
		slog.String("author", author),
		slog.String("status", string(a.Status)),
	)
	return a, nil
}

// Publish は著者の下書き記事を公開する。
func (s *Service) Publish(ctx context.Context, id int64, author string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Publish(ctx, id, author); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Error("記事の公開に失敗しました",
				slog.Int64("article_id", id),
				slog.String("kind", model.FailureKind(err)),
				slog.String("error", err.Error()),
			)
		}
		return err
	}
	return nil
}

// ListPublished は公開記事を新しい順に返す。
func (s *Service) ListPublished(ctx context.Context, limit int) ([]model.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.repo.ListPublished(ctx, clampLimit(limit))
	if err != nil {
		s.logger.Error("記事一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, err
	}
	return list, nil
}

// ListByAuthor は著者の記事を下書きを含めて新しい順に返す。
func (s *Service) ListByAuthor(ctx context.Context, author string, limit int) ([]model.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.repo.ListByAuthor(ctx, author, clampLimit(limit))
	if err != nil {
		s.logger.Error("著者の記事一覧の取得に失敗しました",
			slog.String("author", author),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return list, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
