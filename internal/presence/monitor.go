package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cryptoinsight/internal/metrics"
	"github.com/hitoshi/cryptoinsight/internal/model"
)

// PresenceReader は最新プレゼンスを読み取るインターフェース。*Trackerが実装する。
type PresenceReader interface {
	LatestPresence(ctx context.Context) ([]model.Presence, error)
}

// Snapshot はMonitorが保持する直近のプレゼンス一覧。
// Staleがtrueの場合、最後のリフレッシュに失敗しており、Entriesは
// FetchedAt時点の古いデータである。
type Snapshot struct {
	Entries   []model.Presence
	FetchedAt time.Time
	Stale     bool
	Err       error
}

// Online はオンラインのユーザー数を返す。
func (s Snapshot) Online() int {
	n := 0
	for _, p := range s.Entries {
		if p.IsOnline {
			n++
		}
	}
	return n
}

// Monitor は管理者画面向けに一定間隔でプレゼンス一覧を再取得する。
type Monitor struct {
	reader   PresenceReader
	interval time.Duration
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// NewMonitor はMonitorを生成する。intervalが0以下の場合は10秒を使用する。
func NewMonitor(reader PresenceReader, interval time.Duration, logger *slog.Logger, m metrics.MetricsCollector) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Monitor{
		reader:   reader,
		interval: interval,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Refresh はプレゼンス一覧を1回取得する。
// 失敗した場合は前回のEntriesを保持したままStaleを立てる。
func (m *Monitor) Refresh(ctx context.Context) error {
	entries, err := m.reader.LatestPresence(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.snap.Stale = true
		m.snap.Err = err
		return err
	}

	m.snap = Snapshot{
		Entries:   entries,
		FetchedAt: m.now(),
	}
	m.metrics.SetOnlineUsers(m.snap.Online())
	return nil
}

// Snapshot は直近のプレゼンス一覧のコピーを返す。
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snap
	s.Entries = append([]model.Presence(nil), m.snap.Entries...)
	return s
}

// Start はコンテキストがキャンセルされるまで一定間隔でRefreshを実行する。
// 起動直後に1回取得する。
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("プレゼンスモニタを開始しました", slog.Duration("interval", m.interval))

	_ = m.Refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("プレゼンスモニタを停止しました")
			return
		case <-ticker.C:
			_ = m.Refresh(ctx)
		}
	}
}
