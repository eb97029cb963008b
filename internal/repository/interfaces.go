// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
// 全ての実装はドライバのエラーをmodel.StoreErrorに分類して返す。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。usernameが重複する場合はErrConflictを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdateRole はユーザーのロールを変更する。
	UpdateRole(ctx context.Context, username string, role model.Role) error

	// UpdatePasswordHash はユーザーのパスワードハッシュを変更する。
	UpdatePasswordHash(ctx context.Context, username, passwordHash string) error
}

// SessionRepository はプレゼンス用セッション行の永続化インターフェース。
type SessionRepository interface {
	// Create はstatus=onlineのセッション行を作成する。started_atとlast_seenはストアの現在時刻。
	Create(ctx context.Context, username, clientID string) (*model.Session, error)

	// Touch はオンラインのセッションのlast_seenをストアの現在時刻に更新する（単調非減少）。
	// オンラインの行が存在しない場合はErrNotFoundを返す。
	Touch(ctx context.Context, id int64) error

	// Close はセッションをofflineにする。既にofflineの場合は何もしない。
	// 行が存在しない場合はErrNotFoundを返す。
	Close(ctx context.Context, id int64) error

	// LatestPerUser はユーザーごとの最新セッション行（last_seen降順、同値はid降順）を
	// username昇順で返す。併せてストアの現在時刻を返す。
	LatestPerUser(ctx context.Context) ([]model.SessionSnapshot, time.Time, error)
}

// ArticleRepository は記事（news）の永続化と集計クエリのインターフェース。
type ArticleRepository interface {
	// Create は記事を作成し、ID・作成日時を設定する。
	Create(ctx context.Context, article *model.Article) error

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Article, error)

	// Publish は著者の下書き記事を公開する。該当記事が無い場合はErrNotFoundを返す。
	Publish(ctx context.Context, id int64, author string) error

	// ListPublished は公開記事を作成日時の降順で返す。
	ListPublished(ctx context.Context, limit int) ([]model.Article, error)

	// ListByAuthor は著者の記事（下書き含む）を作成日時の降順で返す。
	ListByAuthor(ctx context.Context, author string, limit int) ([]model.Article, error)

	// Stats は記事のカウンタを返す。見つからない場合はnilを返す。
	Stats(ctx context.Context, id int64) (*model.ArticleStats, error)

	// Ranked は公開記事のランキングを返す。daysはRankingTrendingのみで使用する。
	Ranked(ctx context.Context, ranking model.Ranking, days, limit int) ([]model.ArticleSummary, error)

	// AuthorStats は著者の公開記事の集計を返す。
	AuthorStats(ctx context.Context, author string) (*model.AuthorStats, error)
}

// EngagementRepository はいいね・ブックマーク・閲覧イベントの永続化インターフェース。
// 追加・削除系の操作はメンバーシップ行の変更とnewsのカウンタ更新を
// 同一トランザクションで行う。
type EngagementRepository interface {
	// AddLike はいいね行を追加し、like_countを1増やす。既に存在する場合はfalseを返す。
	AddLike(ctx context.Context, articleID int64, username string) (bool, error)
	// RemoveLike はいいね行を削除し、like_countを1減らす。存在しない場合はfalseを返す。
	RemoveLike(ctx context.Context, articleID int64, username string) (bool, error)
	// HasLike はいいね行の存在を返す。
	HasLike(ctx context.Context, articleID int64, username string) (bool, error)

	AddBookmark(ctx context.Context, articleID int64, username string) (bool, error)
	RemoveBookmark(ctx context.Context, articleID int64, username string) (bool, error)
	HasBookmark(ctx context.Context, articleID int64, username string) (bool, error)

	// RecordView は閲覧イベントを追記し、viewsを1増やす。usernameが空の場合はNULLで保存する。
	RecordView(ctx context.Context, articleID int64, username, ipAddress string) error

	// LikedBy はユーザーがいいねした公開記事を新しい順に返す。
	LikedBy(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error)
	// BookmarkedBy はユーザーがブックマークした公開記事を新しい順に返す。
	BookmarkedBy(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error)
	// Likers は記事にいいねしたユーザーを新しい順に返す。
	Likers(ctx context.Context, articleID int64, limit int) ([]model.Liker, error)
	// SummaryByUser はユーザーのいいね数とブックマーク数を返す。
	SummaryByUser(ctx context.Context, username string) (*model.UserEngagementSummary, error)
}
