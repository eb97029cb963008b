package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したプレゼンスセッションリポジトリ。
// 時刻は全てストア側のNOW()で記録し、クライアントの時計には依存しない。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はstatus=onlineのセッション行を作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, username, clientID string) (*model.Session, error) {
	s := &model.Session{Username: username, ClientID: clientID}
	var status string

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_sessions (username, client_id, status)
		 VALUES ($1, $2, 'online')
		 RETURNING id, started_at, last_seen, status`,
		username, nullString(clientID),
	).Scan(&s.ID, &s.StartedAt, &s.LastSeen, &status)
	if err != nil {
		return nil, classify("create session", err)
	}

	s.Status = model.SessionStatus(status)
	return s, nil
}

// Touch はオンラインのセッションのlast_seenを更新する。
// GREATESTによりlast_seenは巻き戻らない。
func (r *PostgresSessionRepo) Touch(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions
		 SET last_seen = GREATEST(last_seen, NOW())
		 WHERE id = $1 AND status = 'online'`,
		id,
	)
	if err != nil {
		return classify("heartbeat", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return classify("heartbeat", err)
	}
	if n == 0 {
		return notFound("heartbeat")
	}
	return nil
}

// Close はセッションをofflineにし、last_seenを更新する。
// 既にofflineの行は変更しないため、2回目以降の呼び出しは1回目と同じ状態を保つ。
func (r *PostgresSessionRepo) Close(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions
		 SET status = 'offline', last_seen = GREATEST(last_seen, NOW())
		 WHERE id = $1 AND status = 'online'`,
		id,
	)
	if err != nil {
		return classify("end session", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return classify("end session", err)
	}
	if n > 0 {
		return nil
	}

	// 更新対象が無い: 既にofflineか、存在しないかを区別する
	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_sessions WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return classify("end session", err)
	}
	if !exists {
		return notFound("end session")
	}
	return nil
}

// LatestPerUser はユーザーごとの最新セッション行とストアの現在時刻を返す。
// usersに存在しないユーザーのロールは'user'とする。
func (r *PostgresSessionRepo) LatestPerUser(ctx context.Context) ([]model.SessionSnapshot, time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (s.username)
		        s.id, s.username, COALESCE(s.client_id::text, ''),
		        s.started_at, s.last_seen, s.status,
		        COALESCE(u.role, 'user'), NOW()
		 FROM user_sessions s
		 LEFT JOIN users u ON u.username = s.username
		 ORDER BY s.username, s.last_seen DESC, s.id DESC`,
	)
	if err != nil {
		return nil, time.Time{}, classify("latest presence", err)
	}
	defer rows.Close()

	var (
		snapshots []model.SessionSnapshot
		now       time.Time
	)
	for rows.Next() {
		var (
			snap         model.SessionSnapshot
			status, role string
		)
		if err := rows.Scan(
			&snap.ID, &snap.Username, &snap.ClientID,
			&snap.StartedAt, &snap.LastSeen, &status,
			&role, &now,
		); err != nil {
			return nil, time.Time{}, classify("latest presence", err)
		}
		snap.Status = model.SessionStatus(status)
		snap.Role = model.Role(role)
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, classify("latest presence", err)
	}

	return snapshots, now, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
