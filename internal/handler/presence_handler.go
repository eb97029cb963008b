package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/cryptoinsight/internal/middleware"
	"github.com/hitoshi/cryptoinsight/internal/model"
	"github.com/hitoshi/cryptoinsight/internal/presence"
)

// PresenceSnapshotter は直近のプレゼンス一覧を返すインターフェース。
// *presence.Monitorが実装する。
type PresenceSnapshotter interface {
	Snapshot() presence.Snapshot
}

// PresenceHandler はプレゼンス監視のHTTPハンドラー。
type PresenceHandler struct {
	monitor PresenceSnapshotter
}

// NewPresenceHandler はPresenceHandlerを生成する。
func NewPresenceHandler(monitor PresenceSnapshotter) *PresenceHandler {
	return &PresenceHandler{monitor: monitor}
}

type presenceEntryResponse struct {
	Username string    `json:"username"`
	Role     string    `json:"role"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type presenceListResponse struct {
	Users     []presenceEntryResponse `json:"users"`
	Online    int                     `json:"online"`
	FetchedAt *time.Time              `json:"fetched_at,omitempty"`
	Stale     bool                    `json:"stale"`
}

// List はGET /api/presence を処理する。
// 直近のリフレッシュに失敗している場合は最後に取得できた一覧をstale=trueで返す。
// 一度も取得できていない場合は503を返す。
func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.monitor.Snapshot()
	if snap.FetchedAt.IsZero() {
		if snap.Stale {
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
			return
		}
		writeJSON(w, http.StatusOK, presenceListResponse{Users: []presenceEntryResponse{}})
		return
	}

	resp := presenceListResponse{
		Users:     make([]presenceEntryResponse, 0, len(snap.Entries)),
		Online:    snap.Online(),
		FetchedAt: &snap.FetchedAt,
		Stale:     snap.Stale,
	}
	for _, p := range snap.Entries {
		resp.Users = append(resp.Users, presenceEntryResponse{
			Username: p.Username,
			Role:     string(p.Role),
			IsOnline: p.IsOnline,
			LastSeen: p.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
