package services

import (
	"testing"
	"time"

	"token-arena/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeArchiver struct {
	archived []string
}

func (f *fakeArchiver) ArchiveGame(g *models.Game) error {
	f.archived = append(f.archived, g.ID)
	return nil
}

func newTestExpiry(t *testing.T) (*ExpiryScheduler, *fakeArchiver, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	archiver := &fakeArchiver{}
	expiry, err := NewExpiryScheduler(db, archiver)
	require.NoError(t, err)
	t.Cleanup(expiry.Stop)
	return expiry, archiver, db
}

func createReadyGame(t *testing.T, db *gorm.DB, playerGiven, opponentGiven *int) string {
	t.Helper()
	bob := "bob"
	now := time.Now().UTC()
	game := &models.Game{
		ID:                uuid.NewString(),
		Status:            models.GameStatusReady,
		PlayerID:          "alice",
		OpponentID:        &bob,
		PlayerAvailable:   4,
		OpponentAvailable: 4,
		PlayerGiven:       playerGiven,
		OpponentGiven:     opponentGiven,
		MatchedAt:         &now,
	}
	require.NoError(t, db.Create(game).Error)
	return game.ID
}

func gameExists(t *testing.T, db *gorm.DB, id string) bool {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Game{}).Where("id = ?", id).Count(&count).Error)
	return count > 0
}

func TestWaitingTimerReclaimsUnmatchedGame(t *testing.T) {
	expiry, _, db := newTestExpiry(t)
	game := &models.Game{
		ID:              uuid.NewString(),
		Status:          models.GameStatusWaiting,
		PlayerID:        "alice",
		PlayerAvailable: 4,
	}
	require.NoError(t, db.Create(game).Error)

	expiry.expireWaiting(game.ID)

	assert.False(t, gameExists(t, db, game.ID))
}

func TestWaitingTimerSparesFreshlyMatchedGame(t *testing.T) {
	expiry, _, db := newTestExpiry(t)
	// the opponent arrived right before the no-show timer fired; the pair
	// keeps the full commitment window counted from match time
	gameID := createReadyGame(t, db, nil, nil)

	expiry.expireWaiting(gameID)

	assert.True(t, gameExists(t, db, gameID))
}

func TestExpireReclaimsHalfCommittedGame(t *testing.T) {
	expiry, _, db := newTestExpiry(t)
	seedAccount(t, db, "alice", 8)
	seedAccount(t, db, "bob", 6)
	gameID := createReadyGame(t, db, intPtr(3), nil)

	expiry.expire(gameID)

	assert.False(t, gameExists(t, db, gameID))
	// abandonment is lossless: tokens only move at settlement
	assert.Equal(t, 8, tokenCount(t, db, "alice"))
	assert.Equal(t, 6, tokenCount(t, db, "bob"))
}

func TestExpireLeavesDualCommittedGame(t *testing.T) {
	expiry, _, db := newTestExpiry(t)
	// both sides committed — settlement may be in flight, expiry must not race it
	gameID := createReadyGame(t, db, intPtr(3), intPtr(2))

	expiry.expire(gameID)

	assert.True(t, gameExists(t, db, gameID))
}

func TestExpireLeavesSettledGame(t *testing.T) {
	expiry, _, db := newTestExpiry(t)
	gameID := createReadyGame(t, db, intPtr(3), intPtr(2))
	require.NoError(t, db.Model(&models.Game{}).Where("id = ?", gameID).
		Update("status", models.GameStatusDone).Error)

	expiry.expire(gameID)

	assert.True(t, gameExists(t, db, gameID))
}

func TestExpireMissingGameIsNoop(t *testing.T) {
	expiry, _, db := newTestExpiry(t)

	expiry.expire(uuid.NewString())

	var count int64
	require.NoError(t, db.Model(&models.Game{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReapArchivesAndDeletesFinishedGame(t *testing.T) {
	expiry, archiver, db := newTestExpiry(t)
	gameID := createReadyGame(t, db, intPtr(3), intPtr(2))
	require.NoError(t, db.Model(&models.Game{}).Where("id = ?", gameID).
		Update("status", models.GameStatusDone).Error)

	expiry.reap(gameID)

	assert.False(t, gameExists(t, db, gameID))
	assert.Equal(t, []string{gameID}, archiver.archived)
}

func TestReapLeavesUnfinishedGame(t *testing.T) {
	expiry, archiver, db := newTestExpiry(t)
	gameID := createReadyGame(t, db, intPtr(3), nil)

	expiry.reap(gameID)

	assert.True(t, gameExists(t, db, gameID))
	assert.Empty(t, archiver.archived)
}

func TestSweepReclaimsStaleAndReapsFinished(t *testing.T) {
	expiry, archiver, db := newTestExpiry(t)

	stale := time.Now().UTC().Add(-2 * MatchWindow)
	fresh := time.Now().UTC()

	bob := "bob"
	staleGame := &models.Game{
		ID: uuid.NewString(), Status: models.GameStatusReady,
		PlayerID: "alice", OpponentID: &bob,
		PlayerAvailable: 4, OpponentAvailable: 4,
		CreatedAt: stale, MatchedAt: &stale,
	}
	freshGame := &models.Game{
		ID: uuid.NewString(), Status: models.GameStatusWaiting,
		PlayerID: "carol", PlayerAvailable: 4,
		CreatedAt: fresh,
	}
	oldCompleted := stale
	doneGame := &models.Game{
		ID: uuid.NewString(), Status: models.GameStatusDone,
		PlayerID: "dave", OpponentID: &bob,
		PlayerAvailable: 4, OpponentAvailable: 4,
		PlayerGiven: intPtr(1), OpponentGiven: intPtr(2),
		CreatedAt: stale, MatchedAt: &stale, CompletedAt: &oldCompleted,
	}
	require.NoError(t, db.Create(staleGame).Error)
	require.NoError(t, db.Create(freshGame).Error)
	require.NoError(t, db.Create(doneGame).Error)

	expiry.sweep()

	assert.False(t, gameExists(t, db, staleGame.ID))
	assert.True(t, gameExists(t, db, freshGame.ID))
	assert.False(t, gameExists(t, db, doneGame.ID))
	assert.Equal(t, []string{doneGame.ID}, archiver.archived)
}
