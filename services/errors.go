// services/errors.go
package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// User-facing game errors. These are surfaced verbatim to the caller — the
// client either retries with corrected input or accepts the terminal outcome.
var (
	ErrPlayerNotFound       = errors.New("cannot join game, player doesn't exist")
	ErrGameNotFound         = errors.New("game does not exist")
	ErrGameNotStarted       = errors.New("game hasn't started yet, still looking for someone to join")
	ErrNotAuthorizedForGame = errors.New("you are not authorised to play in this game")
	ErrGameAlreadyComplete  = errors.New("game already finished, not authorised to send tokens")
	ErrInvalidWagerAmount   = errors.New("invalid amount of tokens to give")
)

// gameErrorStatus maps a game error to its HTTP status code.
func gameErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrPlayerNotFound), errors.Is(err, ErrGameNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotAuthorizedForGame):
		return fiber.StatusForbidden
	default:
		return fiber.StatusBadRequest
	}
}

// gameErrorResponse writes the standard error body for a game error.
func gameErrorResponse(c *fiber.Ctx, err error) error {
	return c.Status(gameErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}
