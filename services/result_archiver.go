// services/result_archiver.go
package services

import (
	"fmt"

	"token-arena/models"
	"token-arena/utils"
)

// R2ResultArchiver writes settled game results to the R2 archive bucket
// before the retention reaper drops the row.
type R2ResultArchiver struct{}

func (R2ResultArchiver) ArchiveGame(g *models.Game) error {
	key := fmt.Sprintf("results/%s.json", g.ID)
	_, err := utils.UploadJSONToR2(key, FinalResults(g))
	return err
}
