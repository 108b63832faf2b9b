// services/leaderboard.go
package services

import (
	"log"

	"token-arena/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const leaderboardLimit = 100

// LeaderboardService is a read-only ranked view over account balances.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// LeaderboardEntry projects only what the ranking page needs.
type LeaderboardEntry struct {
	Nickname   string `json:"nickname"`
	TokenCount int    `json:"token_count"`
}

// Leaderboard returns the top accounts by token count, descending.
func (s *LeaderboardService) Leaderboard(c *fiber.Ctx) error {
	var entries []LeaderboardEntry
	if err := s.DB.Model(&models.Account{}).
		Select("nickname", "token_count").
		Order("token_count DESC").
		Limit(leaderboardLimit).
		Scan(&entries).Error; err != nil {
		log.Printf("[LEADERBOARD] DB error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch leaderboard"})
	}
	return c.JSON(entries)
}
