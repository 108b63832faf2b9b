// workers/account_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"token-arena/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountSyncClient pulls player profiles from the account service and keeps
// the local accounts mirror fresh.
type AccountSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewAccountSyncClient(db *gorm.DB) *AccountSyncClient {
	baseURL := os.Getenv("SYNC_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("ARENA_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("ARENA_SERVICE_TOKEN environment variable is required for account sync")
	}

	return &AccountSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RemoteAccount mirrors the account service's public profile payload.
type RemoteAccount struct {
	ExternalID string    `json:"external_id"`
	Nickname   string    `json:"nickname"`
	TokenGrant int       `json:"token_grant"` // starting balance for new players
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c *AccountSyncClient) GetChangedAccounts(ctx context.Context, since time.Time) ([]RemoteAccount, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/accounts", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Accounts []RemoteAccount `json:"accounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}

	return response.Accounts, nil
}

// PollAccounts keeps the local accounts mirror in step with the account
// service. token_count is seeded only on insert — once a player exists,
// settlement owns the balance and the sync must not clobber it.
func PollAccounts(ctx context.Context, client *AccountSyncClient, pollInterval time.Duration) {
	log.Println("Starting account polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Account polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			remote, err := client.GetChangedAccounts(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling accounts: %v", err)
				continue
			}

			count := len(remote)
			if count == 0 {
				continue
			}

			accounts := make([]models.Account, 0, count)
			for _, r := range remote {
				accounts = append(accounts, models.Account{
					// slugified nicknames give stable, key-safe identities
					// regardless of what the upstream profile allows
					Nickname:   slug.Make(r.Nickname),
					ExternalID: r.ExternalID,
					TokenCount: r.TokenGrant,
				})
			}

			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "nickname"}},
					// token_count deliberately excluded: settlement owns
					// balances after the initial seed
					DoUpdates: clause.AssignmentColumns([]string{
						"external_id",
						"updated_at",
					}),
				},
			).Create(&accounts).Error; err != nil {
				log.Printf("❌ Failed to upsert %d account(s): %v", count, err)
				// Do NOT update lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d account(s) into the mirror.", count)
		}
	}
}
