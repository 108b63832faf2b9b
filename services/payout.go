// services/payout.go
package services

import (
	"token-arena/models"

	"github.com/gofiber/fiber/v2"
)

// WagerCap is the most tokens a single game can put at stake per side.
// A side's available pool is min(WagerCap, token_count) at match time.
const WagerCap = 4

// Payout holds both sides' balances around a settled game.
type Payout struct {
	PlayerBefore   int
	PlayerAfter    int
	OpponentBefore int
	OpponentAfter  int
}

// ComputePayout applies the settlement rule table to a game whose two
// commitments are both present:
//
//   - each side keeps what it held back (available - given) and receives
//     double what the opponent gave;
//   - if both sides gave nothing, the staked pools are forfeited instead:
//     both lose min(player_available, opponent_available, WagerCap).
//
// The result is applied exactly once per game; callers guard that with the
// conditional done transition, not here.
func ComputePayout(playerCount, opponentCount int, g *models.Game) Payout {
	pa, oa := g.PlayerAvailable, g.OpponentAvailable
	pg, og := intOrZero(g.PlayerGiven), intOrZero(g.OpponentGiven)

	playerChange := (pa - pg) + 2*og
	opponentChange := (oa - og) + 2*pg

	if pg == 0 && og == 0 {
		penalty := min(pa, oa, WagerCap)
		playerChange = pa - penalty
		opponentChange = oa - penalty
	}

	return Payout{
		PlayerBefore:   playerCount,
		PlayerAfter:    playerCount - pa + playerChange,
		OpponentBefore: opponentCount,
		OpponentAfter:  opponentCount - oa + opponentChange,
	}
}

// FinalResults builds the both-sides results payload from the snapshot taken
// at settlement time, keyed by nickname the way clients expect it.
func FinalResults(g *models.Game) fiber.Map {
	pg := intOrZero(g.PlayerGiven)
	og := intOrZero(g.OpponentGiven)

	opponentID := ""
	if g.OpponentID != nil {
		opponentID = *g.OpponentID
	}

	return fiber.Map{
		g.PlayerID: fiber.Map{
			"nickname":      g.PlayerID,
			"opponent_name": opponentID,
			"available":     g.PlayerAvailable,
			"given":         pg,
			"gotten":        og,
			"before_game":   g.PlayerBefore,
			"after_game":    g.PlayerAfter,
		},
		opponentID: fiber.Map{
			"nickname":      opponentID,
			"opponent_name": g.PlayerID,
			"available":     g.OpponentAvailable,
			"given":         og,
			"gotten":        pg,
			"before_game":   g.OpponentBefore,
			"after_game":    g.OpponentAfter,
		},
	}
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
