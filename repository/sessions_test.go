package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	comm "github.com/verder-helpen/comm-common"

	_ "github.com/mattn/go-sqlite3"
)

func setupSessions(t *testing.T) (*Sessions, *bun.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	repo := NewSessions(bunDB, nil)
	require.NoError(t, repo.CreateSchema(context.Background()))
	return repo, bunDB
}

func testSession(id, roomID string) *comm.Session {
	return comm.NewSession(comm.GuestToken{
		ID:          id,
		RoomID:      roomID,
		Domain:      comm.DomainGuest,
		RedirectURL: "https://redirect.example.com",
		Name:        "Willeke",
		Instance:    "platform.example.com",
	}, "meeting")
}

func ageSession(t *testing.T, db *bun.DB, sessionID string, age time.Duration) {
	t.Helper()
	_, err := db.NewUpdate().
		Model((*SessionModel)(nil)).
		Set("last_activity = ?", time.Now().UTC().Add(-age)).
		Where("session_id = ?", sessionID).
		Exec(context.Background())
	require.NoError(t, err)
}

func TestPersistRejectsDuplicateSessionID(t *testing.T) {
	repo, db := setupSessions(t)
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, testSession("session-1", "room-1")))

	err := repo.Persist(ctx, testSession("session-1", "room-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, comm.ErrSessionExists)
	assert.True(t, comm.IsConflict(err))

	// No partial row from the rejected attempt.
	count, err := db.NewSelect().Model((*SessionModel)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterAuthResultExactlyOnce(t *testing.T) {
	repo, _ := setupSessions(t)
	ctx := context.Background()

	session := testSession("session-1", "room-1")
	require.NoError(t, repo.Persist(ctx, session))

	require.NoError(t, repo.RegisterAuthResult(ctx, session.AttrID, "succeeded"))

	err := repo.RegisterAuthResult(ctx, session.AttrID, "overwritten")
	require.Error(t, err)
	assert.ErrorIs(t, err, comm.ErrSessionNotFound)

	sessions, err := repo.FindByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].AuthResult)
	assert.Equal(t, "succeeded", *sessions[0].AuthResult)
}

func TestRegisterAuthResultUnknownAttrID(t *testing.T) {
	repo, _ := setupSessions(t)

	err := repo.RegisterAuthResult(context.Background(), "no-such-attr", "succeeded")
	require.Error(t, err)
	assert.ErrorIs(t, err, comm.ErrSessionNotFound)
	assert.True(t, comm.IsNotFound(err))
}

func TestRegisterAuthResultConcurrentDeliveries(t *testing.T) {
	repo, _ := setupSessions(t)
	ctx := context.Background()

	session := testSession("session-1", "room-1")
	require.NoError(t, repo.Persist(ctx, session))

	const deliveries = 8
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.RegisterAuthResult(ctx, session.AttrID, fmt.Sprintf("result-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	var winner int
	for i, err := range errs {
		if err == nil {
			winners++
			winner = i
		} else {
			assert.ErrorIs(t, err, comm.ErrSessionNotFound)
		}
	}
	require.Equal(t, 1, winners, "exactly one delivery must win")

	sessions, err := repo.FindByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].AuthResult)
	assert.Equal(t, fmt.Sprintf("result-%d", winner), *sessions[0].AuthResult)
}

func TestFindByRoomIDReturnsAllSessions(t *testing.T) {
	repo, _ := setupSessions(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Persist(ctx, testSession(fmt.Sprintf("session-%d", i), "room-1")))
	}
	require.NoError(t, repo.Persist(ctx, testSession("session-other", "room-2")))

	sessions, err := repo.FindByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	seen := map[string]bool{}
	for _, session := range sessions {
		seen[session.GuestToken.ID] = true
		assert.Equal(t, "room-1", session.GuestToken.RoomID)
		assert.Equal(t, comm.DomainGuest, session.GuestToken.Domain)
		assert.Equal(t, "https://redirect.example.com", session.GuestToken.RedirectURL)
		assert.Equal(t, "Willeke", session.GuestToken.Name)
		assert.Equal(t, "platform.example.com", session.GuestToken.Instance)
		assert.Equal(t, "meeting", session.Purpose)
		assert.NotEmpty(t, session.AttrID)
		assert.Nil(t, session.AuthResult)
	}
	assert.Len(t, seen, 3)
}

func TestFindByRoomIDEmptyRoom(t *testing.T) {
	repo, _ := setupSessions(t)

	_, err := repo.FindByRoomID(context.Background(), "room-empty")
	require.Error(t, err)
	assert.ErrorIs(t, err, comm.ErrSessionNotFound)
}

func TestFindByRoomIDRefreshesActivity(t *testing.T) {
	repo, db := setupSessions(t)
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, testSession("session-1", "room-1")))
	ageSession(t, db, "session-1", 2*time.Hour)

	// The lookup refreshes last_activity, so the sweep right after must
	// leave the session alone.
	_, err := repo.FindByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.NoError(t, repo.CleanExpired(ctx))

	sessions, err := repo.FindByRoomID(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestCleanExpired(t *testing.T) {
	repo, db := setupSessions(t)
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, testSession("session-old", "room-old")))
	require.NoError(t, repo.Persist(ctx, testSession("session-fresh", "room-fresh")))
	ageSession(t, db, "session-old", 2*time.Hour)

	require.NoError(t, repo.CleanExpired(ctx))

	_, err := repo.FindByRoomID(ctx, "room-old")
	assert.ErrorIs(t, err, comm.ErrSessionNotFound)

	sessions, err := repo.FindByRoomID(ctx, "room-fresh")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Idempotent: a second sweep on a stable store changes nothing.
	require.NoError(t, repo.CleanExpired(ctx))
	sessions, err = repo.FindByRoomID(ctx, "room-fresh")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestFindByRoomIDCorruptedDomain(t *testing.T) {
	repo, db := setupSessions(t)
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, testSession("session-1", "room-1")))
	_, err := db.NewUpdate().
		Model((*SessionModel)(nil)).
		Set("domain = ?", "corrupted").
		Where("session_id = ?", "session-1").
		Exec(ctx)
	require.NoError(t, err)

	_, err = repo.FindByRoomID(ctx, "room-1")
	require.Error(t, err)
	// Data integrity failure, not a lookup miss.
	assert.NotErrorIs(t, err, comm.ErrSessionNotFound)
	assert.False(t, comm.IsNotFound(err))
}
