package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成する。usernameのUNIQUE制約違反はErrConflictとなる。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		user.Username, user.PasswordHash, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return classify("create user", err)
	}
	return nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user := &model.User{}
	var role string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at, updated_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find user", err)
	}

	user.Role = model.Role(role)
	return user, nil
}

// UpdateRole はユーザーのロールを変更する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, username string, role model.Role) error {
	return r.update(ctx, "update role",
		`UPDATE users SET role = $2, updated_at = NOW() WHERE username = $1`,
		username, string(role),
	)
}

// UpdatePasswordHash はユーザーのパスワードハッシュを変更する。
func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, username, passwordHash string) error {
	return r.update(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE username = $1`,
		username, passwordHash,
	)
}

func (r *PostgresUserRepo) update(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return notFound(op)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
