package presence

import (
	"context"
	"log/slog"
	"time"
)

// SessionKeeper はハートビートとセッション終了を行うインターフェース。
// *Trackerが実装する。
type SessionKeeper interface {
	Heartbeat(ctx context.Context, sessionID int64) error
	EndSession(ctx context.Context, sessionID int64) error
}

// Heartbeater はログイン中のクライアントが一定間隔でハートビートを送るタイマー。
// 間隔はプレゼンスウィンドウより短くする必要がある。
type Heartbeater struct {
	keeper    SessionKeeper
	sessionID int64
	interval  time.Duration
	logger    *slog.Logger
}

// NewHeartbeater はHeartbeaterを生成する。intervalが0以下の場合は15秒を使用する。
func NewHeartbeater(keeper SessionKeeper, sessionID int64, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{
		keeper:    keeper,
		sessionID: sessionID,
		interval:  interval,
		logger:    logger,
	}
}

// Run はコンテキストがキャンセルされるまでハートビートを送り続ける。
// ハートビートの失敗では停止せず、次のティックで再送する。
// キャンセル後はセッションを終了してから戻る。
func (h *Heartbeater) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.end()
			return
		case <-ticker.C:
			// 失敗はTracker側でWARN記録済み
			_ = h.keeper.Heartbeat(ctx, h.sessionID)
		}
	}
}

// end は親コンテキストのキャンセル後に呼ばれるため、新しいコンテキストを使う。
func (h *Heartbeater) end() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.keeper.EndSession(ctx, h.sessionID); err != nil {
		h.logger.Warn("ログアウト時のセッション終了に失敗しました",
			slog.Int64("session_id", h.sessionID),
			slog.String("error", err.Error()),
		)
	}
}
