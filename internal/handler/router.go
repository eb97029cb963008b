package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cryptoinsight/internal/metrics"
	"github.com/hitoshi/cryptoinsight/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	Metrics     metrics.MetricsCollector
	RateLimiter *middleware.RateLimiter

	// ヘルスチェックとメトリクス
	DB       Pinger
	Gatherer prometheus.Gatherer

	// プレゼンス
	Presence PresenceSnapshotter

	// エンゲージメント
	Engagement EngagementReader
}

// NewRouter は監視APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))

	healthHandler := NewHealthHandler(deps.DB, 0)
	presenceHandler := NewPresenceHandler(deps.Presence)
	articleHandler := NewArticleHandler(deps.Engagement)

	r.Get("/health", healthHandler.Check)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/api/presence", presenceHandler.List)

		r.Route("/api/articles", func(r chi.Router) {
			r.Get("/trending", articleHandler.Trending)
			r.Get("/popular", articleHandler.Popular)
			r.Get("/most-liked", articleHandler.MostLiked)
			r.Get("/{id}/stats", articleHandler.Stats)
		})

		r.Get("/api/authors/{author}/stats", articleHandler.AuthorStats)
	})

	return r
}
