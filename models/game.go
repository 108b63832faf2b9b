// models/game.go
package models

import "time"

// Game lifecycle. Monotonic: waiting → ready → done, never backwards.
const (
	GameStatusWaiting = 0
	GameStatusReady   = 1
	GameStatusDone    = 2
)

// Game is the authoritative record for one two-player wager round.
// It is owned exclusively by this service: created on join, matched by the
// second joiner, completed by settlement and removed by the expiry scheduler.
//
// All state transitions run as conditional UPDATEs against this row — never
// read-then-write — so two players acting at the same instant cannot both
// claim the same transition.
type Game struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	Status int    `json:"status" gorm:"not null;index"`

	PlayerID   string  `json:"player_id" gorm:"not null;index"`
	OpponentID *string `json:"opponent_id,omitempty" gorm:"index"` // nil until matched

	// Wager buckets. Available is frozen at min(4, token_count) when the side
	// enters the game; Given stays nil until that side commits and is
	// write-once after that.
	PlayerAvailable   int  `json:"player_available" gorm:"not null"`
	PlayerGiven       *int `json:"player_given,omitempty"`
	OpponentAvailable int  `json:"opponent_available" gorm:"not null;default:0"`
	OpponentGiven     *int `json:"opponent_given,omitempty"`

	// Balance snapshot, written atomically with the done transition so late
	// result queries never recompute against post-settlement balances.
	PlayerBefore   int `json:"player_before"`
	PlayerAfter    int `json:"player_after"`
	OpponentBefore int `json:"opponent_before"`
	OpponentAfter  int `json:"opponent_after"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	MatchedAt   *time.Time `json:"matched_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsParticipant reports whether nickname plays on either side of the game.
func (g *Game) IsParticipant(nickname string) bool {
	if nickname == g.PlayerID {
		return true
	}
	return g.OpponentID != nil && nickname == *g.OpponentID
}
