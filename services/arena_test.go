package services

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"token-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBuildArenaViewNoCommits(t *testing.T) {
	bob := "bob"
	game := &models.Game{Status: models.GameStatusReady, PlayerID: "alice", OpponentID: &bob}

	for _, selfIsPlayer := range []bool{true, false} {
		v := buildArenaView(game, selfIsPlayer)
		assert.False(t, v.SelfCommitted)
		assert.False(t, v.OpponentCommitted)
		assert.False(t, v.Done)
	}
}

func TestBuildArenaViewIsRecipientRelative(t *testing.T) {
	bob := "bob"
	game := &models.Game{
		Status:        models.GameStatusReady,
		PlayerID:      "alice",
		OpponentID:    &bob,
		OpponentGiven: intPtr(2),
	}

	// bob committed: alice sees an opponent move, bob sees his own
	aliceView := buildArenaView(game, true)
	assert.False(t, aliceView.SelfCommitted)
	assert.True(t, aliceView.OpponentCommitted)

	bobView := buildArenaView(game, false)
	assert.True(t, bobView.SelfCommitted)
	assert.False(t, bobView.OpponentCommitted)
}

func TestBuildArenaViewDone(t *testing.T) {
	bob := "bob"
	game := &models.Game{
		Status:        models.GameStatusDone,
		PlayerID:      "alice",
		OpponentID:    &bob,
		PlayerGiven:   intPtr(3),
		OpponentGiven: intPtr(2),
	}

	v := buildArenaView(game, true)
	assert.True(t, v.Done)
	assert.True(t, v.SelfCommitted)
	assert.True(t, v.OpponentCommitted)
}

func newArenaTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := NewArenaService(db)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if nick := c.Get("X-User-Nickname"); nick != "" {
			c.Locals("nickname", nick)
		}
		return c.Next()
	})
	app.Get("/games/:id/arena", svc.GetArenaInfo)
	app.Get("/games/:id/arena/stream", svc.StreamArena)
	return app, db
}

func TestGetArenaInfoIsCallerRelative(t *testing.T) {
	app, db := newArenaTestApp(t)

	bob := "bob"
	now := time.Now().UTC()
	game := &models.Game{
		ID:                "g1",
		Status:            models.GameStatusReady,
		PlayerID:          "alice",
		OpponentID:        &bob,
		PlayerAvailable:   4,
		OpponentAvailable: 2,
		MatchedAt:         &now,
	}
	require.NoError(t, db.Create(game).Error)

	code, body := doJSON(t, app, "GET", "/games/g1/arena", "alice", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "alice", body["player_id"])
	assert.Equal(t, "bob", body["opponent_id"])
	assert.Equal(t, float64(4), body["tokens_available"])
	assert.Equal(t, "/games/g1/arena/stream", body["stream_url"])

	code, body = doJSON(t, app, "GET", "/games/g1/arena", "bob", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "bob", body["player_id"])
	assert.Equal(t, "alice", body["opponent_id"])
	assert.Equal(t, float64(2), body["tokens_available"])
}

func TestGetArenaInfoRejections(t *testing.T) {
	app, db := newArenaTestApp(t)

	code, body := doJSON(t, app, "GET", "/games/missing/arena", "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, ErrGameNotFound.Error(), body["error"])

	waiting := &models.Game{ID: "g2", Status: models.GameStatusWaiting, PlayerID: "alice", PlayerAvailable: 4}
	require.NoError(t, db.Create(waiting).Error)

	code, body = doJSON(t, app, "GET", "/games/g2/arena", "alice", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, ErrGameNotStarted.Error(), body["error"])

	bob := "bob"
	done := &models.Game{
		ID: "g3", Status: models.GameStatusDone,
		PlayerID: "alice", OpponentID: &bob,
		PlayerAvailable: 4, OpponentAvailable: 4,
		PlayerGiven: intPtr(1), OpponentGiven: intPtr(1),
	}
	require.NoError(t, db.Create(done).Error)

	code, body = doJSON(t, app, "GET", "/games/g3/arena", "alice", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, ErrGameAlreadyComplete.Error(), body["error"])

	ready := &models.Game{
		ID: "g4", Status: models.GameStatusReady,
		PlayerID: "alice", OpponentID: &bob,
		PlayerAvailable: 4, OpponentAvailable: 4,
	}
	require.NoError(t, db.Create(ready).Error)

	code, body = doJSON(t, app, "GET", "/games/g4/arena", "carol", nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	assert.Equal(t, ErrNotAuthorizedForGame.Error(), body["error"])
}

func TestStreamArenaRejections(t *testing.T) {
	app, db := newArenaTestApp(t)

	// a stream opened before matching would idle until expiry; reject it the
	// same way the bootstrap endpoint does
	waiting := &models.Game{ID: "s1", Status: models.GameStatusWaiting, PlayerID: "alice", PlayerAvailable: 4}
	require.NoError(t, db.Create(waiting).Error)

	code, body := doJSON(t, app, "GET", "/games/s1/arena/stream", "alice", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, ErrGameNotStarted.Error(), body["error"])

	bob := "bob"
	done := &models.Game{
		ID: "s2", Status: models.GameStatusDone,
		PlayerID: "alice", OpponentID: &bob,
		PlayerAvailable: 4, OpponentAvailable: 4,
		PlayerGiven: intPtr(1), OpponentGiven: intPtr(1),
	}
	require.NoError(t, db.Create(done).Error)

	code, body = doJSON(t, app, "GET", "/games/s2/arena/stream", "carol", nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	assert.Equal(t, ErrNotAuthorizedForGame.Error(), body["error"])

	code, body = doJSON(t, app, "GET", "/games/s2/arena/stream", "alice", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, ErrGameAlreadyComplete.Error(), body["error"])
}

func TestWriteArenaEventDropsUnencodablePayload(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	writeArenaEvent(w, ArenaEventSettled, fiber.Map{"bad": make(chan int)})
	require.NoError(t, w.Flush())
	assert.Empty(t, buf.String())

	writeArenaEvent(w, ArenaEventOpponentMoved, fiber.Map{"game_id": "g1"})
	require.NoError(t, w.Flush())
	assert.Contains(t, buf.String(), "event: opponent_moved\n")
	assert.Contains(t, buf.String(), `"game_id":"g1"`)
}
