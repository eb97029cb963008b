package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// ランキングごとの並び順。同値の場合は作成日時の新しい順、さらにIDの降順で確定させる。
var rankingOrder = map[model.Ranking]string{
	model.RankingTrending:  "views DESC, like_count DESC, bookmark_count DESC, created_at DESC, id DESC",
	model.RankingPopular:   "views DESC, like_count DESC, bookmark_count DESC, created_at DESC, id DESC",
	model.RankingMostLiked: "like_count DESC, views DESC, bookmark_count DESC, created_at DESC, id DESC",
}

const articleColumns = `id, title, content, author, status, created_at, views, like_count, bookmark_count`

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// Create は記事を作成し、ID・作成日時を設定する。カウンタは0で作成される。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	if article.Status == "" {
		article.Status = model.ArticleDraft
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO news (title, content, author, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		article.Title, article.Content, article.Author, string(article.Status),
	).Scan(&article.ID, &article.CreatedAt)
	if err != nil {
		return classify("create article", err)
	}
	article.Views, article.LikeCount, article.BookmarkCount = 0, 0, 0
	return nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id int64) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM news WHERE id = $1`,
		id,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find article", err)
	}
	return a, nil
}

// Publish は著者の下書き記事を公開する。
func (r *PostgresArticleRepo) Publish(ctx context.Context, id int64, author string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE news SET status = 'published' WHERE id = $1 AND author = $2`,
		id, author,
	)
	if err != nil {
		return classify("publish article", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify("publish article", err)
	}
	if n == 0 {
		return notFound("publish article")
	}
	return nil
}

// ListPublished は公開記事を作成日時の降順で返す。
func (r *PostgresArticleRepo) ListPublished(ctx context.Context, limit int) ([]model.Article, error) {
	return r.list(ctx, "list articles",
		`SELECT `+articleColumns+` FROM news
		 WHERE status = 'published'
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
}

// ListByAuthor は著者の記事を作成日時の降順で返す。
func (r *PostgresArticleRepo) ListByAuthor(ctx context.Context, author string, limit int) ([]model.Article, error) {
	return r.list(ctx, "list author articles",
		`SELECT `+articleColumns+` FROM news
		 WHERE author = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		author, limit,
	)
}

func (r *PostgresArticleRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return articles, nil
}

// Stats は記事のカウンタを返す。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) Stats(ctx context.Context, id int64) (*model.ArticleStats, error) {
	s := &model.ArticleStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT views, like_count, bookmark_count FROM news WHERE id = $1`,
		id,
	).Scan(&s.Views, &s.Likes, &s.Bookmarks)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("article stats", err)
	}
	return s, nil
}

// Ranked は公開記事のランキングを返す。
func (r *PostgresArticleRepo) Ranked(ctx context.Context, ranking model.Ranking, days, limit int) ([]model.ArticleSummary, error) {
	order, ok := rankingOrder[ranking]
	if !ok {
		return nil, fmt.Errorf("unknown ranking: %q", ranking)
	}

	query := `SELECT id, title, author, views, like_count, bookmark_count, created_at
		 FROM news WHERE status = 'published'`
	args := []any{limit}
	if ranking == model.RankingTrending {
		query += ` AND created_at > NOW() - make_interval(days => $2)`
		args = append(args, days)
	}
	query += ` ORDER BY ` + order + ` LIMIT $1`

	op := "rank " + string(ranking)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var summaries []model.ArticleSummary
	for rows.Next() {
		var s model.ArticleSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Author, &s.Views, &s.LikeCount, &s.BookmarkCount, &s.CreatedAt); err != nil {
			return nil, classify(op, err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return summaries, nil
}

// AuthorStats は著者の公開記事の集計を返す。平均は小数第1位に丸める。
func (r *PostgresArticleRepo) AuthorStats(ctx context.Context, author string) (*model.AuthorStats, error) {
	s := &model.AuthorStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(views), 0),
		        COALESCE(SUM(like_count), 0),
		        COALESCE(SUM(bookmark_count), 0),
		        COALESCE(ROUND(AVG(views)::numeric, 1), 0)::float8,
		        COALESCE(ROUND(AVG(like_count)::numeric, 1), 0)::float8
		 FROM news
		 WHERE author = $1 AND status = 'published'`,
		author,
	).Scan(&s.TotalArticles, &s.TotalViews, &s.TotalLikes, &s.TotalBookmarks, &s.AvgViews, &s.AvgLikes)
	if err != nil {
		return nil, classify("author stats", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*model.Article, error) {
	a := &model.Article{}
	var status string
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Author, &status, &a.CreatedAt,
		&a.Views, &a.LikeCount, &a.BookmarkCount)
	if err != nil {
		return nil, err
	}
	a.Status = model.ArticleStatus(status)
	return a, nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
