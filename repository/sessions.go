package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	comm "github.com/verder-helpen/comm-common"
)

// SessionModel is the Bun model for persisted sessions.
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	SessionID    string    `bun:"session_id,pk"`
	RoomID       string    `bun:"room_id,notnull"`
	Domain       string    `bun:"domain,notnull"`
	RedirectURL  string    `bun:"redirect_url,notnull"`
	Purpose      string    `bun:"purpose,notnull"`
	Name         string    `bun:"name,notnull"`
	Instance     string    `bun:"instance,notnull"`
	AttrID       string    `bun:"attr_id,notnull"`
	AuthResult   *string   `bun:"auth_result"`
	LastActivity time.Time `bun:"last_activity,notnull"`
}

// SessionsSchema creates the sessions table. Kept portable between Postgres
// and the SQLite used in tests.
const SessionsSchema = `CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT NOT NULL PRIMARY KEY,
    room_id       TEXT NOT NULL,
    domain        TEXT NOT NULL,
    redirect_url  TEXT NOT NULL,
    purpose       TEXT NOT NULL,
    name          TEXT NOT NULL,
    instance      TEXT NOT NULL,
    attr_id       TEXT NOT NULL,
    auth_result   TEXT,
    last_activity TIMESTAMP NOT NULL
);`

// Sessions is the session store. The database handle is passed in explicitly
// so tests can substitute it; there is no package-level state.
type Sessions struct {
	db     *bun.DB
	logger comm.Logger
}

// NewSessions creates a session store on the given database handle.
func NewSessions(db *bun.DB, logger comm.Logger) *Sessions {
	if logger == nil {
		logger = comm.DefaultLogger()
	}
	return &Sessions{db: db, logger: logger}
}

// CreateSchema applies the sessions DDL. Intended for tests and simple
// deployments; production setups run their own migrations.
func (r *Sessions) CreateSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, SessionsSchema); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to create sessions schema")
	}
	return nil
}

// Persist inserts a newly created session. It never updates: a session id
// that already exists surfaces as comm.ErrSessionExists.
func (r *Sessions) Persist(ctx context.Context, session *comm.Session) error {
	model := fromSession(session, time.Now().UTC())
	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return comm.ErrSessionExists
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to persist session")
	}
	return nil
}

// RegisterAuthResult records an authentication result for the session with
// the given attr_id. The single conditional update is the concurrency
// control: concurrent deliveries for one attr_id race safely because exactly
// one update matches, the rest get comm.ErrSessionNotFound. An unknown
// attr_id and an already resolved session are indistinguishable here.
func (r *Sessions) RegisterAuthResult(ctx context.Context, attrID, authResult string) error {
	res, err := r.db.NewUpdate().
		Model((*SessionModel)(nil)).
		Set("auth_result = ?", authResult).
		Set("last_activity = ?", time.Now().UTC()).
		Where("attr_id = ?", attrID).
		Where("auth_result IS NULL").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to register auth result")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to register auth result")
	}
	if n != 1 {
		return comm.ErrSessionNotFound
	}
	return nil
}

// FindByRoomID returns every session in a room, refreshing their activity
// timestamps in the same statement. An empty room is comm.ErrSessionNotFound;
// the store does not distinguish a room that never existed from one whose
// sessions all expired.
func (r *Sessions) FindByRoomID(ctx context.Context, roomID string) ([]comm.Session, error) {
	var models []SessionModel
	err := r.db.NewRaw(
		`UPDATE sessions SET last_activity = ? WHERE room_id = ? RETURNING
            session_id, room_id, domain, redirect_url, purpose,
            name, instance, attr_id, auth_result, last_activity`,
		time.Now().UTC(), roomID,
	).Scan(ctx, &models)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to look up sessions by room")
	}
	if len(models) == 0 {
		return nil, comm.ErrSessionNotFound
	}

	sessions := make([]comm.Session, 0, len(models))
	for i := range models {
		session, err := toSession(&models[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// CleanExpired deletes every session idle longer than comm.SessionExpiry.
// Running it on an already clean store is a no-op.
func (r *Sessions) CleanExpired(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-comm.SessionExpiry)
	_, err := r.db.NewDelete().
		Model((*SessionModel)(nil)).
		Where("last_activity < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to clean expired sessions")
	}
	return nil
}

// PeriodicClean runs CleanExpired on the given interval until ctx is done.
// Failures are logged and the loop keeps going.
func (r *Sessions) PeriodicClean(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.CleanExpired(ctx); err != nil {
				r.logger.Error("session cleanup failed: %v", err)
			}
		}
	}
}

func fromSession(session *comm.Session, now time.Time) *SessionModel {
	return &SessionModel{
		SessionID:    session.GuestToken.ID,
		RoomID:       session.GuestToken.RoomID,
		Domain:       session.GuestToken.Domain.String(),
		RedirectURL:  session.GuestToken.RedirectURL,
		Purpose:      session.Purpose,
		Name:         session.GuestToken.Name,
		Instance:     session.GuestToken.Instance,
		AttrID:       session.AttrID,
		AuthResult:   session.AuthResult,
		LastActivity: now,
	}
}

func toSession(model *SessionModel) (comm.Session, error) {
	domain, err := comm.ParseSessionDomain(model.Domain)
	if err != nil {
		// A row we wrote ourselves carries an unknown domain: data
		// integrity failure, not a lookup miss.
		return comm.Session{}, goerrors.Wrap(err, goerrors.CategoryInternal, "session row has a corrupted domain")
	}
	return comm.Session{
		GuestToken: comm.GuestToken{
			ID:          model.SessionID,
			RoomID:      model.RoomID,
			Domain:      domain,
			RedirectURL: model.RedirectURL,
			Name:        model.Name,
			Instance:    model.Instance,
		},
		AuthResult: model.AuthResult,
		AttrID:     model.AttrID,
		Purpose:    model.Purpose,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
