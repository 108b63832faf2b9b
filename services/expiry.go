// services/expiry.go
package services

import (
	"errors"
	"log"
	"time"

	"token-arena/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

const (
	// MatchWindow is how long a game may sit without reaching dual
	// commitment before it is reclaimed as AFK.
	MatchWindow = 30 * time.Second

	// expiryDelta pads the window so a commitment landing right at the
	// deadline is not raced by its own cleanup timer.
	expiryDelta = 1 * time.Second

	// DefaultRetention keeps finished games around for late result queries
	// before they are archived and deleted.
	DefaultRetention = 2 * time.Minute
)

// ResultArchiver persists a finished game's results before the row is reaped.
type ResultArchiver interface {
	ArchiveGame(g *models.Game) error
}

// ExpiryScheduler reclaims games that never complete and reaps finished ones
// after the retention window. Every timer re-reads current state when it
// fires — never a closure-captured snapshot — so a completion that races an
// expiry always wins: the delete predicate re-checks status and commitments.
type ExpiryScheduler struct {
	DB        *gorm.DB
	Retention time.Duration
	Archiver  ResultArchiver // optional; nil disables archiving
	sched     gocron.Scheduler
}

func NewExpiryScheduler(db *gorm.DB, archiver ResultArchiver) (*ExpiryScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	s := &ExpiryScheduler{
		DB:        db,
		Retention: DefaultRetention,
		Archiver:  archiver,
		sched:     sched,
	}

	// Every minute: sweep games whose one-shot timer was lost to a restart.
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(s.sweep),
	); err != nil {
		return nil, err
	}

	sched.Start()
	return s, nil
}

func (s *ExpiryScheduler) Stop() {
	if err := s.sched.Shutdown(); err != nil {
		log.Printf("[EXPIRY] scheduler shutdown: %v", err)
	}
}

// WatchWaiting arms the no-show timer for a freshly opened game.
func (s *ExpiryScheduler) WatchWaiting(gameID string) {
	s.oneShot(time.Now().Add(MatchWindow+expiryDelta), gameID, s.expireWaiting)
}

// WatchMatch arms the AFK timer once a game is matched.
func (s *ExpiryScheduler) WatchMatch(gameID string) {
	s.oneShot(time.Now().Add(MatchWindow+expiryDelta), gameID, s.expire)
}

// ScheduleReap queues archive-and-delete for a finished game after the
// retention window.
func (s *ExpiryScheduler) ScheduleReap(gameID string) {
	s.oneShot(time.Now().Add(s.Retention), gameID, s.reap)
}

func (s *ExpiryScheduler) oneShot(at time.Time, gameID string, task func(string)) {
	if _, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(task, gameID),
	); err != nil {
		log.Printf("[EXPIRY] failed to schedule job for game %s: %v", gameID, err)
	}
}

// expireWaiting deletes the game only if nobody ever joined. A game matched
// in the meantime gets the full AFK window from its own match timer, so the
// no-show timer must not touch it.
func (s *ExpiryScheduler) expireWaiting(gameID string) {
	res := s.DB.Where("id = ? AND status = ?", gameID, models.GameStatusWaiting).Delete(&models.Game{})
	if res.Error != nil {
		log.Printf("[EXPIRY] failed to expire waiting game %s: %v", gameID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[EXPIRY] unmatched game %s deleted", gameID)
	}
}

// expire deletes a matched game unless it is done or both sides have committed.
// No balances are touched: tokens move only at settlement, so abandonment is
// lossless to both players.
func (s *ExpiryScheduler) expire(gameID string) {
	res := s.DB.Where(
		"id = ? AND status <> ? AND (player_given IS NULL OR opponent_given IS NULL)",
		gameID, models.GameStatusDone,
	).Delete(&models.Game{})
	if res.Error != nil {
		log.Printf("[EXPIRY] failed to expire game %s: %v", gameID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[EXPIRY] AFK game %s deleted", gameID)
	}
}

// reap archives and deletes one finished game past retention.
func (s *ExpiryScheduler) reap(gameID string) {
	var game models.Game
	if err := s.DB.First(&game, "id = ? AND status = ?", gameID, models.GameStatusDone).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[EXPIRY] failed to load game %s for reaping: %v", gameID, err)
		}
		return
	}

	if s.Archiver != nil {
		// archive is best effort; the result snapshot also lives in the logs
		if err := s.Archiver.ArchiveGame(&game); err != nil {
			log.Printf("[EXPIRY] failed to archive game %s: %v", gameID, err)
		}
	}

	res := s.DB.Where("id = ? AND status = ?", gameID, models.GameStatusDone).Delete(&models.Game{})
	if res.Error != nil {
		log.Printf("[EXPIRY] failed to reap game %s: %v", gameID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		opponentID := ""
		if game.OpponentID != nil {
			opponentID = *game.OpponentID
		}
		log.Printf("[EXPIRY] game %s reaped after retention [%s, %s]", gameID, game.PlayerID, opponentID)
	}
}

// sweep is the catch-all for timers lost to a restart: it reclaims stale
// unfinished games and reaps finished ones past retention.
func (s *ExpiryScheduler) sweep() {
	staleCutoff := time.Now().UTC().Add(-(MatchWindow + expiryDelta))

	res := s.DB.Where(
		"status <> ? AND (player_given IS NULL OR opponent_given IS NULL) AND COALESCE(matched_at, created_at) < ?",
		models.GameStatusDone, staleCutoff,
	).Delete(&models.Game{})
	if res.Error != nil {
		log.Printf("[EXPIRY] sweep failed deleting stale games: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("[EXPIRY] sweep deleted %d stale game(s)", res.RowsAffected)
	}

	doneCutoff := time.Now().UTC().Add(-s.Retention)
	var done []models.Game
	if err := s.DB.Where("status = ? AND completed_at < ?", models.GameStatusDone, doneCutoff).
		Find(&done).Error; err != nil {
		log.Printf("[EXPIRY] sweep failed loading finished games: %v", err)
		return
	}
	for i := range done {
		s.reap(done[i].ID)
	}
}
