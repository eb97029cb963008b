// Package engagement は記事ごとのいいね・ブックマーク・閲覧のカウンタと、
// カウンタに基づく集計（トレンド、人気、いいね数順、著者統計）を提供する。
package engagement

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/cryptoinsight/internal/metrics"
	"github.com/hitoshi/cryptoinsight/internal/model"
	"github.com/hitoshi/cryptoinsight/internal/repository"
)

const (
	defaultRankingLimit = 10
	defaultListLimit    = 50
	maxLimit            = 100
	defaultTrendingDays = 7
)

// Service はエンゲージメント操作を提供する。
// 失敗時は中立値（false/0/nil）と種別付きエラーを返す。自動リトライはしない。
type Service struct {
	articles     repository.ArticleRepository
	engagement   repository.EngagementRepository
	timeout      time.Duration
	trendingDays int
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	articles repository.ArticleRepository,
	engagement repository.EngagementRepository,
	timeout time.Duration,
	trendingDays int,
	logger *slog.Logger,
	m metrics.MetricsCollector,
) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if trendingDays <= 0 {
		trendingDays = defaultTrendingDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{
		articles:     articles,
		engagement:   engagement,
		timeout:      timeout,
		trendingDays: trendingDays,
		logger:       logger,
		metrics:      m,
	}
}

// Like は記事にいいねする。状態が変化した場合にtrueを返す。
// 既にいいね済みの場合は(false, nil)。
func (s *Service) Like(ctx context.Context, articleID int64, username string) (bool, error) {
	return s.toggle(ctx, "like", articleID, username, s.engagement.AddLike)
}

// Unlike はいいねを取り消す。いいねしていない場合は(false, nil)。
func (s *Service) Unlike(ctx context.Context, articleID int64, username string) (bool, error) {
	return s.toggle(ctx, "unlike", articleID, username, s.engagement.RemoveLike)
}

// Bookmark は記事をブックマークする。既にブックマーク済みの場合は(false, nil)。
func (s *Service) Bookmark(ctx context.Context, articleID int64, username string) (bool, error) {
	return s.toggle(ctx, "bookmark", articleID, username, s.engagement.AddBookmark)
}

// Unbookmark はブックマークを解除する。ブックマークしていない場合は(false, nil)。
func (s *Service) Unbookmark(ctx context.Context, articleID int64, username string) (bool, error) {
	return s.toggle(ctx, "unbookmark", articleID, username, s.engagement.RemoveBookmark)
}

// IsLiked はユーザーが記事にいいねしているかを返す。
func (s *Service) IsLiked(ctx context.Context, articleID int64, username string) (bool, error) {
	return s.check(ctx, "is_liked", articleID, username, s.engagement.HasLike)
}

// IsBookmarked はユーザーが記事をブックマークしているかを返す。
func (s *Service) IsBookmarked(ctx context.Context, articleID int64, username string) (bool, error) {
	return s.check(ctx, "is_bookmarked", articleID, username, s.engagement.HasBookmark)
}

type membershipFunc func(ctx context.Context, articleID int64, username string) (bool, error)

func (s *Service) toggle(ctx context.Context, op string, articleID int64, username string, fn membershipFunc) (bool, error) {
	if err := validateTarget(op, articleID, username); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	changed, err := fn(ctx, articleID, username)
	if errors.Is(err, model.ErrConflict) {
		// 一意制約の競合は既に同じ状態であることを意味する
		changed, err = false, nil
	}
	s.metrics.RecordStoreOp(op, model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure(op, err, slog.Int64("article_id", articleID), slog.String("username", username))
		return false, err
	}
	if changed {
		s.metrics.RecordEngagementChange(op)
	}
	return changed, nil
}

func (s *Service) check(ctx context.Context, op string, articleID int64, username string, fn membershipFunc) (bool, error) {
	if articleID <= 0 || username == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	ok, err := fn(ctx, articleID, username)
	s.metrics.RecordStoreOp(op, model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure(op, err, slog.Int64("article_id", articleID), slog.String("username", username))
		return false, err
	}
	return ok, nil
}

// TrackView は閲覧イベントを記録し、閲覧数を1増やす。
// usernameが空の場合は匿名閲覧、ipAddressが空の場合は0.0.0.0として記録する。
func (s *Service) TrackView(ctx context.Context, articleID int64, username, ipAddress string) (bool, error) {
	if articleID <= 0 {
		return false, model.NewStoreError("track_view", model.ErrNotFound, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.engagement.RecordView(ctx, articleID, username, ipAddress)
	s.metrics.RecordStoreOp("track_view", model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure("track_view", err, slog.Int64("article_id", articleID), slog.String("username", username))
		return false, err
	}
	s.metrics.RecordEngagementChange("view")
	return true, nil
}

// Trending は直近days日以内に作成された公開記事を閲覧数順に返す。
// daysが0以下の場合は設定値を使用する。
func (s *Service) Trending(ctx context.Context, limit, days int) ([]model.ArticleSummary, error) {
	if days <= 0 {
		days = s.trendingDays
	}
	return s.ranked(ctx, model.RankingTrending, days, limit)
}

// Popular は全期間の公開記事を閲覧数順に返す。
func (s *Service) Popular(ctx context.Context, limit int) ([]model.ArticleSummary, error) {
	return s.ranked(ctx, model.RankingPopular, 0, limit)
}

// MostLiked は全期間の公開記事をいいね数順に返す。
func (s *Service) MostLiked(ctx context.Context, limit int) ([]model.ArticleSummary, error) {
	return s.ranked(ctx, model.RankingMostLiked, 0, limit)
}

func (s *Service) ranked(ctx context.Context, ranking model.Ranking, days, limit int) ([]model.ArticleSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	op := string(ranking)
	start := time.Now()
	list, err := s.articles.Ranked(ctx, ranking, days, clampLimit(limit, defaultRankingLimit))
	s.metrics.RecordStoreOp(op, model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure(op, err, slog.Int("days", days))
		return nil, err
	}
	return list, nil
}

// AuthorStats は著者の公開記事の集計を返す。
func (s *Service) AuthorStats(ctx context.Context, author string) (*model.AuthorStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	stats, err := s.articles.AuthorStats(ctx, author)
	s.metrics.RecordStoreOp("author_stats", model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure("author_stats", err, slog.String("author", author))
		return &model.AuthorStats{}, err
	}
	return stats, nil
}

// ArticleStats は記事の閲覧数・いいね数・ブックマーク数を返す。
// 記事が存在しない場合はゼロ値とErrNotFoundを返す。
func (s *Service) ArticleStats(ctx context.Context, articleID int64) (model.ArticleStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	stats, err := s.articles.Stats(ctx, articleID)
	if err == nil && stats == nil {
		err = model.NewStoreError("article stats", model.ErrNotFound, nil)
	}
	s.metrics.RecordStoreOp("article_stats", model.FailureKind(err), time.Since(start))
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logFailure("article_stats", err, slog.Int64("article_id", articleID))
		}
		return model.ArticleStats{}, err
	}
	return *stats, nil
}

// EngagementRate は (いいね数 + ブックマーク数) / 閲覧数 * 100 を小数第2位に丸めて返す。
// 閲覧数が0の場合は0を返す。
func (s *Service) EngagementRate(ctx context.Context, articleID int64) (float64, error) {
	stats, err := s.ArticleStats(ctx, articleID)
	if err != nil {
		return 0, err
	}
	return Rate(stats), nil
}

// Rate はカウンタからエンゲージメント率を計算する。
func Rate(stats model.ArticleStats) float64 {
	if stats.Views <= 0 {
		return 0
	}
	rate := float64(stats.Likes+stats.Bookmarks) / float64(stats.Views) * 100
	return math.Round(rate*100) / 100
}

// LikedArticles はユーザーがいいねした公開記事を新しい順に返す。
func (s *Service) LikedArticles(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error) {
	return s.memberships(ctx, "liked_articles", username, limit, s.engagement.LikedBy)
}

// BookmarkedArticles はユーザーがブックマークした公開記事を新しい順に返す。
func (s *Service) BookmarkedArticles(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error) {
	return s.memberships(ctx, "bookmarked_articles", username, limit, s.engagement.BookmarkedBy)
}

func (s *Service) memberships(
	ctx context.Context,
	op, username string,
	limit int,
	fn func(ctx context.Context, username string, limit int) ([]model.MembershipEntry, error),
) ([]model.MembershipEntry, error) {
	if username == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	list, err := fn(ctx, username, clampLimit(limit, defaultListLimit))
	s.metrics.RecordStoreOp(op, model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure(op, err, slog.String("username", username))
		return nil, err
	}
	return list, nil
}

// Likers は記事にいいねしたユーザーを新しい順に返す。
func (s *Service) Likers(ctx context.Context, articleID int64, limit int) ([]model.Liker, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	list, err := s.engagement.Likers(ctx, articleID, clampLimit(limit, defaultListLimit))
	s.metrics.RecordStoreOp("likers", model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure("likers", err, slog.Int64("article_id", articleID))
		return nil, err
	}
	return list, nil
}

// UserSummary はユーザーのいいね数とブックマーク数を返す。
func (s *Service) UserSummary(ctx context.Context, username string) (model.UserEngagementSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	summary, err := s.engagement.SummaryByUser(ctx, username)
	s.metrics.RecordStoreOp("user_summary", model.FailureKind(err), time.Since(start))
	if err != nil {
		s.logFailure("user_summary", err, slog.String("username", username))
		return model.UserEngagementSummary{}, err
	}
	return *summary, nil
}

// ArticleInfo は公開記事の本文とカウンタ、エンゲージメント率を返す。
// usernameが指定された場合はそのユーザーのいいね・ブックマーク状態も含める。
// 下書き記事や存在しない記事はErrNotFoundとなる。
func (s *Service) ArticleInfo(ctx context.Context, articleID int64, username string) (*model.ArticleInfo, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	article, err := s.articles.FindByID(qctx, articleID)
	cancel()
	if err == nil && (article == nil || article.Status != model.ArticlePublished) {
		err = model.NewStoreError("article info", model.ErrNotFound, nil)
	}
	s.metrics.RecordStoreOp("article_info", model.FailureKind(err), time.Since(start))
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logFailure("article_info", err, slog.Int64("article_id", articleID))
		}
		return nil, err
	}

	info := &model.ArticleInfo{
		Article: *article,
		EngagementRate: Rate(model.ArticleStats{
			Views: article.Views, Likes: article.LikeCount, Bookmarks: article.BookmarkCount,
		}),
	}
	if username == "" {
		return info, nil
	}

	if info.IsLiked, err = s.IsLiked(ctx, articleID, username); err != nil {
		return nil, err
	}
	if info.IsBookmarked, err = s.IsBookmarked(ctx, articleID, username); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Service) logFailure(op string, err error, attrs ...any) {
	args := append([]any{
		slog.String("op", op),
		slog.String("kind", model.FailureKind(err)),
		slog.String("error", err.Error()),
	}, attrs...)
	s.logger.Error("エンゲージメント操作に失敗しました", args...)
}

func validateTarget(op string, articleID int64, username string) error {
	if articleID <= 0 {
		return model.NewStoreError(op, model.ErrNotFound, errors.New("invalid article id"))
	}
	if username == "" {
		return model.NewStoreError(op, model.ErrNotFound, errors.New("empty username"))
	}
	return nil
}

// clampLimit は0以下の件数を既定値に、上限を超える件数を上限に丸める。
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
