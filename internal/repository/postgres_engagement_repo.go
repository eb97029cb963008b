package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// membership はいいね・ブックマークのテーブルと対応するカウンタ列の組。
// テーブル名・列名は定数のみを使用し、外部入力をSQLに埋め込まない。
type membership struct {
	name     string
	table    string
	counter  string
	tsColumn string
}

var (
	likes = membership{
		name:     "like",
		table:    "article_likes",
		counter:  "like_count",
		tsColumn: "liked_at",
	}
	bookmarks = membership{
		name:     "bookmark",
		table:    "article_bookmarks",
		counter:  "bookmark_count",
		tsColumn: "bookmarked_at",
	}
)

// PostgresEngagementRepo はPostgreSQLを使用したエンゲージメントリポジトリ。
// メンバーシップ行の変更とカウンタ更新は同一トランザクションで行い、
// 同時実行時もカウンタと行数が一致する。
type PostgresEngagementRepo struct {
	db *sql.DB
}

// NewPostgresEngagementRepo はPostgresEngagementRepoを生成する。
func NewPostgresEngagementRepo(db *sql.DB) *PostgresEngagementRepo {
	return &PostgresEngagementRepo{db: db}
}

// AddLike はいいね行を追加し、like_countを1増やす。
func (r *PostgresEngagementRepo) AddLike(ctx context.Context, articleID int64, username string) (bool, error) {
	return r.add(ctx, likes, articleID, username)
}

// RemoveLike はいいね行を削除し、like_countを1減らす。
func (r *PostgresEngagementRepo) RemoveLike(ctx context.Context, articleID int64, username string) (bool, error) {
	return r.remove(ctx, likes, articleID, username)
}

// HasLike はいいね行の存在を返す。
func (r *PostgresEngagementRepo) HasLike(ctx context.Context, articleID int64, username string) (bool, error) {
	return r.has(ctx, likes, articleID, username)
}

// AddBookmark はブックマーク行を追加し、bookmark_countを1増やす。
func (r *PostgresEngagementRepo) AddBookmark(ctx context.Context, articleID int64, username string) (bool, error) {
	return r.add(ctx, bookmarks, articleID, username)
}

// RemoveBookmark はブックマーク行を削除し、bookmark_countを1減らす。
func (r *PostgresEngagementRepo) RemoveBookmark(ctx context.Context, articleID int64, username string) (bool, error) {
	return r.remove(ctx, bookmarks, articleID, username)
}

// HasBookmark はブックマーク行の存在を返す。
func (r *PostgresEngagementRepo) HasBookmark(ctx context.Context, articleID int64, username string) (bool, error) {
	return r.has(ctx, bookmarks, articleID, username)
}

func (r *PostgresEngagementRepo) add(ctx context.Context, m membership, articleID int64, username string) (bool, error) {
	op := "add " + m.name
	return r.inTx(ctx, op, func(tx *sql.Tx) (bool, error) {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO `+m.table+` (article_id, username)
			 VALUES ($1, $2)
			 ON CONFLICT (article_id, username) DO NOTHING`,
			articleID, username,
		)
		if err != nil {
			return false, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE news SET `+m.counter+` = `+m.counter+` + 1 WHERE id = $1`,
			articleID,
		)
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

func (r *PostgresEngagementRepo) remove(ctx context.Context, m membership, articleID int64, username string) (bool, error) {
	op := "remove " + m.name
	return r.inTx(ctx, op, func(tx *sql.Tx) (bool, error) {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM `+m.table+` WHERE article_id = $1 AND username = $2`,
			articleID, username,
		)
		if err != nil {
			return false, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE news SET `+m.counter+` = `+m.counter+` - 1 WHERE id = $1`,
			articleID,
		)
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

func (r *PostgresEngagementRepo) has(ctx context.Context, m membership, articleID int64, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+m.table+` WHERE article_id = $1 AND username = $2)`,
		articleID, username,
	).Scan(&exists)
	if err != nil {
		return false, classify("check "+m.name, err)
	}
	return exists, nil
}

// RecordView は閲覧イベントを追記し、viewsを1増やす。
func (r *PostgresEngagementRepo) RecordView(ctx context.Context, articleID int64, username, ipAddress string) error {
	if ipAddress == "" {
		ipAddress = "0.0.0.0"
	}
	_, err := r.inTx(ctx, "track view", func(tx *sql.Tx) (bool, error) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO article_views (article_id, username, ip_address)
			 VALUES ($1, $2, $3)`,
			articleID, nullString(username), ipAddress,
		); err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE news SET views = views + 1 WHERE id = $1`,
			articleID,
		); err != nil {
			return false, err
		}
		return true, nil
	})
	return err
}

// inTx はfnをトランザクション内で実行する。fnがエラーを返した場合はロールバックする。
func (r *PostgresEngagementRepo) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) (bool, error)) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify(op, err)
	}

	changed, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return false, classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, classify(op, err)
	}
	return changed, nil
}

// LikedBy はユーザーがいいねした公開記事を新しい順に返す。
func (r *PostgresEngagementRepo) LikedBy(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error) {
	return r.listBy(ctx, likes, username, limit)
}

// BookmarkedBy はユーザーがブックマークした公開記事を新しい順に返す。
func (r *PostgresEngagementRepo) BookmarkedBy(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error) {
	return r.listBy(ctx, bookmarks, username, limit)
}

func (r *PostgresEngagementRepo) listBy(ctx context.Context, m membership, username string, limit int) ([]model.MembershipEntry, error) {
	op := "list " + m.name + "s"
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.title, n.author, n.like_count, x.`+m.tsColumn+`
		 FROM `+m.table+` x
		 JOIN news n ON n.id = x.article_id
		 WHERE x.username = $1 AND n.status = 'published'
		 ORDER BY x.`+m.tsColumn+` DESC, n.id DESC
		 LIMIT $2`,
		username, limit,
	)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []model.MembershipEntry
	for rows.Next() {
		var e model.MembershipEntry
		if err := rows.Scan(&e.ArticleID, &e.Title, &e.Author, &e.LikeCount, &e.At); err != nil {
			return nil, classify(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

// Likers は記事にいいねしたユーザーを新しい順に返す。
func (r *PostgresEngagementRepo) Likers(ctx context.Context, articleID int64, limit int) ([]model.Liker, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT username, liked_at FROM article_likes
		 WHERE article_id = $1
		 ORDER BY liked_at DESC, username
		 LIMIT $2`,
		articleID, limit,
	)
	if err != nil {
		return nil, classify("list likers", err)
	}
	defer rows.Close()

	var likers []model.Liker
	for rows.Next() {
		var l model.Liker
		if err := rows.Scan(&l.Username, &l.LikedAt); err != nil {
			return nil, classify("list likers", err)
		}
		likers = append(likers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list likers", err)
	}
	return likers, nil
}

// SummaryByUser はユーザーのいいね数とブックマーク数を返す。
func (r *PostgresEngagementRepo) SummaryByUser(ctx context.Context, username string) (*model.UserEngagementSummary, error) {
	s := &model.UserEngagementSummary{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
		    (SELECT COUNT(*) FROM article_likes WHERE username = $1),
		    (SELECT COUNT(*) FROM article_bookmarks WHERE username = $1)`,
		username,
	).Scan(&s.Liked, &s.Bookmarked)
	if err != nil {
		return nil, classify("user summary", err)
	}
	return s, nil
}

// compile-time interface check
var _ EngagementRepository = (*PostgresEngagementRepo)(nil)
