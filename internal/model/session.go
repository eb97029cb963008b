package model

import "time"

// SessionStatus はセッション行に保存される状態。
type SessionStatus string

const (
	SessionOnline  SessionStatus = "online"
	SessionOffline SessionStatus = "offline"
)

// Session はログインごとに作成されるプレゼンス行を表す。
// 1ユーザーが過去のセッション行を複数持つことがある。
type Session struct {
	ID        int64
	Username  string
	ClientID  string
	StartedAt time.Time
	LastSeen  time.Time
	Status    SessionStatus
}

// SessionSnapshot はユーザーごとの最新セッション行とロールを結合したもの。
type SessionSnapshot struct {
	Session
	Role Role
}

// Presence は監視画面に表示するユーザーのオンライン状態。
// IsOnlineは保存値ではなく、最新行のstatusとlast_seenの鮮度から導出される。
type Presence struct {
	Username string
	Role     Role
	IsOnline bool
	LastSeen time.Time
}
