// services/arena_service.go
package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"token-arena/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Arena event types pushed over the stream, in per-connection state machine
// order: connected → awaiting opponent → (opponent_moved | self_moved) →
// settled | expired. settled and expired are terminal and close the stream.
const (
	ArenaEventOpponentMoved = "opponent_moved"
	ArenaEventSelfMoved     = "self_moved"
	ArenaEventSettled       = "settled"
	ArenaEventExpired       = "expired"
)

// ArenaService pushes filtered, per-recipient game state to live connections.
type ArenaService struct {
	DB *gorm.DB
}

func NewArenaService(db *gorm.DB) *ArenaService {
	return &ArenaService{DB: db}
}

// arenaView is the per-recipient projection of a game. It carries commitment
// existence only — never the opponent's amount — so a player cannot adjust
// their wager based on what the other side locked in.
type arenaView struct {
	SelfCommitted     bool
	OpponentCommitted bool
	Done              bool
}

func buildArenaView(g *models.Game, selfIsPlayer bool) arenaView {
	v := arenaView{
		SelfCommitted:     g.PlayerGiven != nil,
		OpponentCommitted: g.OpponentGiven != nil,
		Done:              g.Status == models.GameStatusDone,
	}
	if !selfIsPlayer {
		v.SelfCommitted, v.OpponentCommitted = v.OpponentCommitted, v.SelfCommitted
	}
	return v
}

// GetArenaInfo validates the caller against a matched game and returns the
// caller-relative bootstrap stats plus the stream path for live updates.
func (s *ArenaService) GetArenaInfo(c *fiber.Ctx) error {
	nickname := c.Locals("nickname").(string)
	gameID := c.Params("id")

	var game models.Game
	if err := s.DB.First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gameErrorResponse(c, ErrGameNotFound)
		}
		log.Printf("[ARENA] DB error loading game %s: %v", gameID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	if game.Status == models.GameStatusWaiting {
		return gameErrorResponse(c, ErrGameNotStarted)
	}
	if !game.IsParticipant(nickname) {
		return gameErrorResponse(c, ErrNotAuthorizedForGame)
	}
	if game.Status == models.GameStatusDone {
		return gameErrorResponse(c, ErrGameAlreadyComplete)
	}

	var opponentID string
	available := game.PlayerAvailable
	if nickname == game.PlayerID {
		opponentID = *game.OpponentID
	} else {
		opponentID = game.PlayerID
		available = game.OpponentAvailable
	}

	return c.JSON(fiber.Map{
		"game_id":          game.ID,
		"player_id":        nickname,
		"opponent_id":      opponentID,
		"tokens_available": available,
		"stream_url":       fmt.Sprintf("/games/%s/arena/stream", game.ID),
	})
}

// StreamArena streams filtered game transitions to one authenticated
// participant over SSE. The writer polls the game row and emits only deltas;
// settled and expired end the stream.
func (s *ArenaService) StreamArena(c *fiber.Ctx) error {
	nickname := c.Locals("nickname").(string)
	gameID := c.Params("id")

	var game models.Game
	if err := s.DB.First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gameErrorResponse(c, ErrGameNotFound)
		}
		log.Printf("[ARENA] DB error loading game %s: %v", gameID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	if game.Status == models.GameStatusWaiting {
		return gameErrorResponse(c, ErrGameNotStarted)
	}
	if !game.IsParticipant(nickname) {
		return gameErrorResponse(c, ErrNotAuthorizedForGame)
	}
	if game.Status == models.GameStatusDone {
		return gameErrorResponse(c, ErrGameAlreadyComplete)
	}

	selfIsPlayer := nickname == game.PlayerID

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		var selfSeen, opponentSeen bool

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var g models.Game
				if err := s.DB.First(&g, "id = ?", gameID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						// reclaimed by the expiry scheduler — tell the
						// remaining side the game ended and hang up
						writeArenaEvent(w, ArenaEventExpired, fiber.Map{"game_id": gameID})
						w.Flush()
						return
					}
					log.Printf("[ARENA] stream query error for game %s: %v", gameID, err)
					continue
				}

				view := buildArenaView(&g, selfIsPlayer)

				if view.Done {
					writeArenaEvent(w, ArenaEventSettled, fiber.Map{
						"game_id": g.ID,
						"results": FinalResults(&g),
					})
					w.Flush()
					return
				}

				if view.OpponentCommitted && !opponentSeen {
					opponentSeen = true
					// existence only — the amount stays hidden until settled
					writeArenaEvent(w, ArenaEventOpponentMoved, fiber.Map{"game_id": g.ID})
				}
				if view.SelfCommitted && !selfSeen {
					selfSeen = true
					writeArenaEvent(w, ArenaEventSelfMoved, fiber.Map{"game_id": g.ID})
				}

				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}

func writeArenaEvent(w *bufio.Writer, event string, data fiber.Map) {
	payload, err := json.Marshal(data)
	if err != nil {
		// drop the frame rather than ship an empty data line
		log.Printf("[ARENA] failed to encode %s event: %v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
