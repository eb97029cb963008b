package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// Config はデータベース接続の設定を保持する。
// プロセス全体のグローバル変数ではなく、明示的にOpen/Connectへ渡す。
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
}

// Open はPostgreSQLデータベース接続プールを開く。
// sql.Openは接続を試行しないため、実際の接続確認にはConnectまたはdb.PingContextを使用すること。
// URLにconnect_timeoutが無い場合はConnectTimeoutから付与する。
func Open(cfg Config) (*sql.DB, error) {
	dsn, err := withConnectTimeout(cfg.URL, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Connect は接続プールを開き、ConnectTimeout以内にPingが成功した場合のみ返す。
// 到達できない場合はmodel.ErrUnavailable種別のエラーを返す。
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, model.NewStoreError("connect", model.ErrUnavailable, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, model.NewStoreError("connect", model.ErrUnavailable, err)
	}

	return db, nil
}

// withConnectTimeout はURL形式のDSNにconnect_timeout（秒）を付与する。
// 既に指定されている場合は変更しない。
func withConnectTimeout(rawURL string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if q.Get("connect_timeout") != "" {
		return rawURL, nil
	}
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	q.Set("connect_timeout", strconv.Itoa(secs))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
