// Package presence はログインセッションのプレゼンス追跡を提供する。
// セッション行への書き込み（開始・ハートビート・終了）と、
// ユーザーごとの最新行からのオンライン状態の導出を行う。
// オンライン状態は保存値ではなく、statusとlast_seenの鮮度から毎回導出する。
package presence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cryptoinsight/internal/metrics"
	"github.com/hitoshi/cryptoinsight/internal/model"
	"github.com/hitoshi/cryptoinsight/internal/repository"
)

// DefaultWindow はlast_seenがこの期間内であればオンラインとみなす既定値。
const DefaultWindow = 45 * time.Second

// Tracker はプレゼンスセッションの書き込みと読み取りを行う。
// 並行に呼び出して安全。
type Tracker struct {
	sessions repository.SessionRepository
	clientID string
	window   time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewTracker はTrackerを生成する。
// windowが0以下の場合はDefaultWindow、timeoutが0以下の場合は5秒を使用する。
// loggerとmがnilの場合はそれぞれslog.Default()とmetrics.Noopを使用する。
func NewTracker(
	sessions repository.SessionRepository,
	window, timeout time.Duration,
	logger *slog.Logger,
	m metrics.MetricsCollector,
) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Tracker{
		sessions: sessions,
		clientID: uuid.NewString(),
		window:   window,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// ClientID はこのTrackerが作成するセッションに記録されるクライアントインスタンスIDを返す。
func (t *Tracker) ClientID() string {
	return t.clientID
}

// Window はオンライン判定のウィンドウを返す。
func (t *Tracker) Window() time.Duration {
	return t.window
}

// StartSession はusernameのオンラインセッションを開始し、セッションIDを返す。
// 失敗時は0と種別付きエラーを返す。
func (t *Tracker) StartSession(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, model.NewStoreError("start session", model.ErrNotFound, errors.New("empty username"))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	s, err := t.sessions.Create(ctx, username, t.clientID)
	t.metrics.RecordStoreOp("start_session", model.FailureKind(err), time.Since(start))
	if err != nil {
		t.logger.Error("セッションの開始に失敗しました",
			slog.String("username", username),
			slog.String("kind", model.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	t.metrics.RecordSessionStarted()
	t.logger.Info("セッションを開始しました",
		slog.String("username", username),
		slog.Int64("session_id", s.ID),
	)
	return s.ID, nil
}

// Heartbeat はセッションのlast_seenをストアの現在時刻に更新する。
// オンラインのセッションが無い場合はErrNotFoundを返す。
// 失敗はWARNで記録され、呼び出し側のループを止めない。
func (t *Tracker) Heartbeat(ctx context.Context, sessionID int64) error {
	if sessionID <= 0 {
		err := model.NewStoreError("heartbeat", model.ErrNotFound, nil)
		t.metrics.RecordHeartbeatFailure(model.FailureKind(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	err := t.sessions.Touch(ctx, sessionID)
	t.metrics.RecordStoreOp("heartbeat", model.FailureKind(err), time.Since(start))
	if err != nil {
		t.metrics.RecordHeartbeatFailure(model.FailureKind(err))
		t.logger.Warn("ハートビートの記録に失敗しました",
			slog.Int64("session_id", sessionID),
			slog.String("kind", model.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// EndSession はセッションをオフラインにする。
// 既にオフラインの場合は何もせずnilを返す。存在しないIDはErrNotFoundを返す。
func (t *Tracker) EndSession(ctx context.Context, sessionID int64) error {
	if sessionID <= 0 {
		return model.NewStoreError("end session", model.ErrNotFound, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	err := t.sessions.Close(ctx, sessionID)
	t.metrics.RecordStoreOp("end_session", model.FailureKind(err), time.Since(start))
	if err != nil {
		t.logger.Error("セッションの終了に失敗しました",
			slog.Int64("session_id", sessionID),
			slog.String("kind", model.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return err
	}

	t.logger.Info("セッションを終了しました", slog.Int64("session_id", sessionID))
	return nil
}

// LatestPresence はセッションを開始したことのある全ユーザーについて、
// 最新セッション行から導出したオンライン状態をusername順で返す。
// 判定にはストアの時計を使用する。失敗時はnilと種別付きエラーを返す。
func (t *Tracker) LatestPresence(ctx context.Context) ([]model.Presence, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	snapshots, now, err := t.sessions.LatestPerUser(ctx)
	t.metrics.RecordStoreOp("latest_presence", model.FailureKind(err), time.Since(start))
	if err != nil {
		t.logger.Error("プレゼンスの取得に失敗しました",
			slog.String("kind", model.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result := make([]model.Presence, 0, len(snapshots))
	for _, snap := range snapshots {
		result = append(result, Derive(snap, now, t.window))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

// Derive は最新セッション行からユーザーのプレゼンスを導出する。
// statusがonlineかつ now - last_seen <= window の場合のみオンライン。
// ロールが空の場合は一般ユーザーとして扱う。
func Derive(snap model.SessionSnapshot, now time.Time, window time.Duration) model.Presence {
	role := snap.Role
	if role == "" {
		role = model.RoleUser
	}
	return model.Presence{
		Username: snap.Username,
		Role:     role,
		IsOnline: snap.Status == model.SessionOnline && now.Sub(snap.LastSeen) <= window,
		LastSeen: snap.LastSeen,
	}
}
