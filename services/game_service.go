// services/game_service.go
package services

import (
	"errors"
	"log"
	"time"

	"token-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameService runs matchmaking and wager settlement over the games table.
type GameService struct {
	DB     *gorm.DB
	Expiry *ExpiryScheduler
}

func NewGameService(db *gorm.DB, expiry *ExpiryScheduler) *GameService {
	return &GameService{DB: db, Expiry: expiry}
}

// JoinGame pairs the caller with a waiting opponent, or opens a new waiting
// game when nobody is queued.
func (s *GameService) JoinGame(c *fiber.Ctx) error {
	nickname := c.Locals("nickname").(string)

	var player models.Account
	if err := s.DB.First(&player, "nickname = ?", nickname).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gameErrorResponse(c, ErrPlayerNotFound)
		}
		log.Printf("[GAME] DB error loading account %s: %v", nickname, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	// one active game per player: a second join while a game is still open
	// returns that game instead of queueing the caller twice
	var existing models.Game
	err := s.DB.Where("(player_id = ? OR opponent_id = ?) AND status <> ?",
		nickname, nickname, models.GameStatusDone).
		First(&existing).Error
	if err == nil {
		return c.JSON(fiber.Map{"game_id": existing.ID, "status": statusLabel(existing.Status)})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[GAME] DB error checking active game for %s: %v", nickname, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	available := min(WagerCap, player.TokenCount)

	game, err := s.claimWaitingGame(nickname, available)
	if err != nil {
		log.Printf("[GAME] DB error claiming waiting game for %s: %v", nickname, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	if game != nil {
		s.Expiry.WatchMatch(game.ID)
		log.Printf("[GAME] matched game %s: %s vs %s", game.ID, game.PlayerID, nickname)
		return c.JSON(fiber.Map{"game_id": game.ID, "status": "ready"})
	}

	game = &models.Game{
		ID:              uuid.NewString(),
		Status:          models.GameStatusWaiting,
		PlayerID:        nickname,
		PlayerAvailable: available,
	}
	if err := s.DB.Create(game).Error; err != nil {
		log.Printf("[GAME] DB error creating game for %s: %v", nickname, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	s.Expiry.WatchWaiting(game.ID)

	return c.JSON(fiber.Map{"game_id": game.ID, "status": "waiting"})
}

// claimWaitingGame flips one waiting game not owned by nickname to ready, with
// the caller installed as opponent, in a single conditional UPDATE. The
// predicate and the write execute as one atomic unit — a separate read plus
// write would let two joiners claim the same game. Returns nil when no
// waiting game was available.
func (s *GameService) claimWaitingGame(nickname string, available int) (*models.Game, error) {
	now := time.Now().UTC()

	oldest := s.DB.Model(&models.Game{}).
		Select("id").
		Where("status = ? AND player_id <> ?", models.GameStatusWaiting, nickname).
		Order("created_at ASC").
		Limit(1)

	var claimed []models.Game
	res := s.DB.Model(&claimed).
		Clauses(clause.Returning{}).
		Where("id = (?) AND status = ?", oldest, models.GameStatusWaiting).
		Updates(map[string]interface{}{
			"status":             models.GameStatusReady,
			"opponent_id":        nickname,
			"opponent_available": available,
			"matched_at":         now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || len(claimed) == 0 {
		return nil, nil
	}
	return &claimed[0], nil
}

// SendTokens records the caller's hidden wager. The second commitment to land
// triggers settlement; exactly one caller observes "both present" on the row
// returned by its own write and performs the payout.
func (s *GameService) SendTokens(c *fiber.Ctx) error {
	nickname := c.Locals("nickname").(string)
	gameID := c.Params("id")

	var body struct {
		TokensSent int `json:"tokens_sent"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if body.TokensSent < 0 {
		return gameErrorResponse(c, ErrInvalidWagerAmount)
	}

	var game models.Game
	if err := s.DB.First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gameErrorResponse(c, ErrGameNotFound)
		}
		log.Printf("[GAME] DB error loading game %s: %v", gameID, err)
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

	givenColumn := "player_given"
	available := game.PlayerAvailable
	committed := game.PlayerGiven != nil
	if nickname != game.PlayerID {
		givenColumn = "opponent_given"
		available = game.OpponentAvailable
		committed = game.OpponentGiven != nil
	}

	if committed {
		// duplicate or retried request from the same side — the first amount stands
		return gameErrorResponse(c, ErrGameAlreadyComplete)
	}
	if body.TokensSent > available {
		return gameErrorResponse(c, ErrInvalidWagerAmount)
	}

	updated, err := s.commitWager(gameID, givenColumn, body.TokensSent)
	if err != nil {
		log.Printf("[GAME] DB error committing wager on game %s: %v", gameID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	if updated == nil {
		// lost a race since the pre-checks: duplicate commit from this side,
		// a settlement, or an expiry landed in between
		if err := s.DB.First(&models.Game{}, "id = ?", gameID).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			return gameErrorResponse(c, ErrGameNotFound)
		}
		return gameErrorResponse(c, ErrGameAlreadyComplete)
	}

	if updated.PlayerGiven != nil && updated.OpponentGiven != nil {
		settled, err := s.settle(updated)
		if err != nil {
			log.Printf("[GAME] settlement failed for game %s: %v", gameID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
		}
		resp := fiber.Map{"status": "done"}
		if settled {
			resp["results"] = FinalResults(updated)
		}
		return c.JSON(resp)
	}

	return c.JSON(fiber.Map{"status": "committed"})
}

// commitWager is the write-once commitment: the UPDATE only matches while the
// game is ready and this side's given is still unset, and RETURNING hands
// back the post-write row so completion detection runs against the same
// atomic read — not a separate, possibly stale one.
func (s *GameService) commitWager(gameID, givenColumn string, amount int) (*models.Game, error) {
	var updated []models.Game
	res := s.DB.Model(&updated).
		Clauses(clause.Returning{}).
		Where("id = ? AND status = ? AND "+givenColumn+" IS NULL", gameID, models.GameStatusReady).
		Update(givenColumn, amount)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || len(updated) == 0 {
		return nil, nil
	}
	return &updated[0], nil
}

// settle flips the game to done and applies the payout to both accounts in a
// single transaction. The conditional status flip makes settlement
// exactly-once: the caller that loses the race sees zero rows and backs off
// without touching balances. Reports whether this call performed the payout.
func (s *GameService) settle(game *models.Game) (bool, error) {
	var settled bool

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var player, opponent models.Account
		if err := tx.First(&player, "nickname = ?", game.PlayerID).Error; err != nil {
			return err
		}
		if err := tx.First(&opponent, "nickname = ?", *game.OpponentID).Error; err != nil {
			return err
		}

		payout := ComputePayout(player.TokenCount, opponent.TokenCount, game)
		now := time.Now().UTC()

		res := tx.Model(&models.Game{}).
			Where("id = ? AND status = ?", game.ID, models.GameStatusReady).
			Updates(map[string]interface{}{
				"status":          models.GameStatusDone,
				"completed_at":    now,
				"player_before":   payout.PlayerBefore,
				"player_after":    payout.PlayerAfter,
				"opponent_before": payout.OpponentBefore,
				"opponent_after":  payout.OpponentAfter,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// another trigger settled first
			return nil
		}

		// balances are adjusted by delta, not overwritten: a balance write
		// that landed between the read above and this update is preserved
		if err := tx.Model(&models.Account{}).
			Where("nickname = ?", game.PlayerID).
			Update("token_count", gorm.Expr("token_count + ?", payout.PlayerAfter-payout.PlayerBefore)).
			Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Account{}).
			Where("nickname = ?", *game.OpponentID).
			Update("token_count", gorm.Expr("token_count + ?", payout.OpponentAfter-payout.OpponentBefore)).
			Error; err != nil {
			return err
		}

		game.Status = models.GameStatusDone
		game.CompletedAt = &now
		game.PlayerBefore = payout.PlayerBefore
		game.PlayerAfter = payout.PlayerAfter
		game.OpponentBefore = payout.OpponentBefore
		game.OpponentAfter = payout.OpponentAfter
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if settled {
		s.Expiry.ScheduleReap(game.ID)
		log.Printf("[GAME] game %s settled: %s %d→%d, %s %d→%d",
			game.ID,
			game.PlayerID, game.PlayerBefore, game.PlayerAfter,
			*game.OpponentID, game.OpponentBefore, game.OpponentAfter)
	}
	return settled, nil
}

// GetGameStatus returns the caller-relative progress of a game. Before the
// game is done only commitment existence is reported, never amounts.
func (s *GameService) GetGameStatus(c *fiber.Ctx) error {
	nickname := c.Locals("nickname").(string)
	gameID := c.Params("id")

	var game models.Game
	if err := s.DB.First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// no game to begin with, reclaimed as AFK, or reaped after completion
			return gameErrorResponse(c, ErrGameNotFound)
		}
		log.Printf("[GAME] DB error loading game %s: %v", gameID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	if !game.IsParticipant(nickname) {
		return gameErrorResponse(c, ErrNotAuthorizedForGame)
	}

	selfCommitted := game.PlayerGiven != nil
	opponentCommitted := game.OpponentGiven != nil
	if nickname != game.PlayerID {
		selfCommitted, opponentCommitted = opponentCommitted, selfCommitted
	}

	resp := fiber.Map{
		"game_id":            game.ID,
		"status":             statusLabel(game.Status),
		"you_committed":      selfCommitted,
		"opponent_committed": opponentCommitted,
	}
	if game.Status == models.GameStatusDone {
		resp["results"] = FinalResults(&game)
	}
	return c.JSON(resp)
}

// GetFinalResults returns the settled results of a finished game, from the
// snapshot written at settlement time.
func (s *GameService) GetFinalResults(c *fiber.Ctx) error {
	gameID := c.Params("id")

	var game models.Game
	if err := s.DB.First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gameErrorResponse(c, ErrGameNotFound)
		}
		log.Printf("[GAME] DB error loading game %s: %v", gameID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	if game.Status != models.GameStatusDone {
		return gameErrorResponse(c, ErrGameNotStarted)
	}

	return c.JSON(fiber.Map{"data": FinalResults(&game)})
}

func statusLabel(status int) string {
	switch status {
	case models.GameStatusWaiting:
		return "waiting"
	case models.GameStatusReady:
		return "ready"
	default:
		return "done"
	}
}
