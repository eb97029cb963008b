package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"

	"github.com/hitoshi/cryptoinsight/internal/article"
	"github.com/hitoshi/cryptoinsight/internal/config"
	"github.com/hitoshi/cryptoinsight/internal/database"
	"github.com/hitoshi/cryptoinsight/internal/engagement"
	"github.com/hitoshi/cryptoinsight/internal/handler"
	"github.com/hitoshi/cryptoinsight/internal/logger"
	"github.com/hitoshi/cryptoinsight/internal/metrics"
	"github.com/hitoshi/cryptoinsight/internal/middleware"
	"github.com/hitoshi/cryptoinsight/internal/model"
	"github.com/hitoshi/cryptoinsight/internal/presence"
	"github.com/hitoshi/cryptoinsight/internal/repository"
	"github.com/hitoshi/cryptoinsight/internal/security"
	"github.com/hitoshi/cryptoinsight/internal/user"
	"github.com/hitoshi/cryptoinsight/internal/worker/cleanup"
)

// ErrUsage はサブコマンドの引数が不足していることを表す。
var ErrUsage = errors.New("invalid arguments")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。outはpresenceコマンドの表出力先、logwはログ出力先。
func Run(out, logw io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(logw)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandPresence:
		return runPresence(ctx, cfg, out)
	case CommandUserAdd:
		return runUserAdd(ctx, cfg, rest)
	case CommandArticleAdd:
		return runArticleAdd(ctx, cfg, rest)
	default:
		return runMonitor(ctx, cfg)
	}
}

// openDB はConfigからデータベースに接続する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(ctx, database.Config{
		URL:            cfg.DatabaseURL,
		ConnectTimeout: cfg.DBConnectTimeout,
		MaxOpenConns:   cfg.DBMaxOpenConns,
		MaxIdleConns:   cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// runMonitor は監視APIサーバーとプレゼンスモニタを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runMonitor(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. リポジトリとドメインサービスの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)
	engagementRepo := repository.NewPostgresEngagementRepo(db)

	tracker := presence.NewTracker(sessionRepo, cfg.PresenceWindow, cfg.DBQueryTimeout, log, collector)
	monitor := presence.NewMonitor(tracker, cfg.PresenceRefreshInterval, log, collector)
	engagementService := engagement.NewService(
		articleRepo, engagementRepo, cfg.DBQueryTimeout, cfg.TrendingDays, log, collector,
	)

	cleanupJob := cleanup.NewCleanupJob(db, log)
	cleanupJob.RetentionDays = cfg.SessionRetentionDays

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer func() {
		cancelWorkers()
		wg.Wait()
	}()

	// 4. バックグラウンド処理
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Start(workerCtx)
	}()
	go func() {
		defer wg.Done()
		// 起動直後に1回実行し、その後は日次で実行する
		_ = cleanupJob.Run(workerCtx)
		cleanupJob.Start(workerCtx, 24*time.Hour)
	}()

	if cfg.MonitorUsername != "" {
		sessionID, err := tracker.StartSession(workerCtx, cfg.MonitorUsername)
		if err != nil {
			slog.Warn("管理者セッションを開始できませんでした",
				slog.String("username", cfg.MonitorUsername),
				slog.String("error", err.Error()),
			)
		} else {
			heartbeater := presence.NewHeartbeater(tracker, sessionID, cfg.HeartbeatInterval, log)
			wg.Add(1)
			go func() {
				defer wg.Done()
				heartbeater.Run(workerCtx)
			}()
		}
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:      log,
		Metrics:     collector,
		RateLimiter: rateLimiter,
		DB:          db,
		Gatherer:    reg,
		Presence:    monitor,
		Engagement:  engagementService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	if cfg.HTTPMaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.HTTPMaxConns)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("monitor server starting",
			slog.String("addr", server.Addr),
			slog.Int("max_conns", cfg.HTTPMaxConns),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down monitor server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("monitor server stopped gracefully")
	return nil
}

// runPresence は最新のプレゼンス一覧を1回取得し、表形式でoutに出力する。
func runPresence(ctx context.Context, cfg *config.Config, out io.Writer) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tracker := presence.NewTracker(
		repository.NewPostgresSessionRepo(db),
		cfg.PresenceWindow, cfg.DBQueryTimeout, slog.Default(), nil,
	)
	entries, err := tracker.LatestPresence(ctx)
	if err != nil {
		return fmt.Errorf("failed to load presence: %w", err)
	}

	return renderPresence(out, entries)
}

// runUserAdd はユーザーを登録する。
// 引数: <username> <password> [role]
func runUserAdd(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: user-add <username> <password> [role]", ErrUsage)
	}
	role := model.RoleUser
	if len(args) > 2 {
		role = model.Role(args[2])
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := user.NewService(repository.NewPostgresUserRepo(db), cfg.BcryptCost, cfg.DBQueryTimeout, slog.Default())
	u, err := svc.Register(ctx, args[0], args[1], role)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", string(u.Role)),
	)
	return nil
}

// runArticleAdd は記事を作成して公開する。
// 引数: <author> <title> <content>
func runArticleAdd(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: article-add <author> <title> <content>", ErrUsage)
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := article.NewService(
		repository.NewPostgresArticleRepo(db),
		security.NewContentSanitizer(),
		cfg.DBQueryTimeout,
		slog.Default(),
	)
	a, err := svc.Create(ctx, args[0], args[1], args[2], true)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}

	slog.Info("記事を公開しました",
		slog.Int64("article_id", a.ID),
		slog.String("author", a.Author),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	return u.Redacted()
}
