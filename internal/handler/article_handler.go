package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cryptoinsight/internal/engagement"
	"github.com/hitoshi/cryptoinsight/internal/middleware"
	"github.com/hitoshi/cryptoinsight/internal/model"
)

// EngagementReader は記事ハンドラーが必要とする読み取り専用のエンゲージメント操作。
// *engagement.Serviceが実装する。
type EngagementReader interface {
	Trending(ctx context.Context, limit, days int) ([]model.ArticleSummary, error)
	Popular(ctx context.Context, limit int) ([]model.ArticleSummary, error)
	MostLiked(ctx context.Context, limit int) ([]model.ArticleSummary, error)
	ArticleStats(ctx context.Context, articleID int64) (model.ArticleStats, error)
	AuthorStats(ctx context.Context, author string) (*model.AuthorStats, error)
}

// ArticleHandler は記事ランキングと統計のHTTPハンドラー。
type ArticleHandler struct {
	service EngagementReader
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service EngagementReader) *ArticleHandler {
	return &ArticleHandler{service: service}
}

type articleSummaryResponse struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Views         int64     `json:"views"`
	LikeCount     int64     `json:"like_count"`
	BookmarkCount int64     `json:"bookmark_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type articleListResponse struct {
	Articles []articleSummaryResponse `json:"articles"`
}

type articleStatsResponse struct {
	ArticleID      int64   `json:"article_id"`
	Views          int64   `json:"views"`
	Likes          int64   `json:"likes"`
	Bookmarks      int64   `json:"bookmarks"`
	EngagementRate float64 `json:"engagement_rate"`
}

type authorStatsResponse struct {
	Author         string  `json:"author"`
	TotalArticles  int64   `json:"total_articles"`
	TotalViews     int64   `json:"total_views"`
	TotalLikes     int64   `json:"total_likes"`
	TotalBookmarks int64   `json:"total_bookmarks"`
	AvgViews       float64 `json:"avg_views"`
	AvgLikes       float64 `json:"avg_likes"`
}

// Trending はGET /api/articles/trending?limit=&days= を処理する。
func (h *ArticleHandler) Trending(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	days, ok := queryInt(r, "days")
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidParameterError("days", r.URL.Query().Get("days")))
		return
	}
	list, err := h.service.Trending(r.Context(), limit, days)
	h.writeList(w, list, err)
}

// Popular はGET /api/articles/popular?limit= を処理する。
func (h *ArticleHandler) Popular(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	list, err := h.service.Popular(r.Context(), limit)
	h.writeList(w, list, err)
}

// MostLiked はGET /api/articles/most-liked?limit= を処理する。
func (h *ArticleHandler) MostLiked(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	list, err := h.service.MostLiked(r.Context(), limit)
	h.writeList(w, list, err)
}

// Stats はGET /api/articles/{id}/stats を処理する。
func (h *ArticleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidParameterError("id", raw))
		return
	}

	stats, err := h.service.ArticleStats(r.Context(), id)
	if err != nil {
		middleware.WriteStoreError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, articleStatsResponse{
		ArticleID:      id,
		Views:          stats.Views,
		Likes:          stats.Likes,
		Bookmarks:      stats.Bookmarks,
		EngagementRate: engagement.Rate(stats),
	})
}

// AuthorStats はGET /api/authors/{author}/stats を処理する。
func (h *ArticleHandler) AuthorStats(w http.ResponseWriter, r *http.Request) {
	author := chi.URLParam(r, "author")
	stats, err := h.service.AuthorStats(r.Context(), author)
	if err != nil {
		middleware.WriteStoreError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, authorStatsResponse{
		Author:         author,
		TotalArticles:  stats.TotalArticles,
		TotalViews:     stats.TotalViews,
		TotalLikes:     stats.TotalLikes,
		TotalBookmarks: stats.TotalBookmarks,
		AvgViews:       stats.AvgViews,
		AvgLikes:       stats.AvgLikes,
	})
}

func (h *ArticleHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidParameterError("limit", r.URL.Query().Get("limit")))
	}
	return limit, ok
}

func (h *ArticleHandler) writeList(w http.ResponseWriter, list []model.ArticleSummary, err error) {
	if err != nil {
		middleware.WriteStoreError(w, err, 0)
		return
	}
	resp := articleListResponse{Articles: make([]articleSummaryResponse, 0, len(list))}
	for _, a := range list {
		resp.Articles = append(resp.Articles, articleSummaryResponse{
			ID:            a.ID,
			Title:         a.Title,
			Author:        a.Author,
			Views:         a.Views,
			LikeCount:     a.LikeCount,
			BookmarkCount: a.BookmarkCount,
			CreatedAt:     a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
