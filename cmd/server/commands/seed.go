package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/repo"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the built-in character catalog",
	Long: `Insert the built-in characters owned by the catalog account.

Characters that already exist are left untouched, so seed can be run repeatedly.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		db, err := openDB(cfg, true)
		if err != nil {
			return err
		}
		defer closeDB(db)

		_, err = seedCatalog(cmd.Context(), db)
		return err
	},
}

func seedCatalog(ctx context.Context, db *gorm.DB) (int, error) {
	n, err := repo.SeedCatalog(ctx, db, repo.SeedOwner, repo.DefaultCatalog())
	if err != nil {
		return 0, err
	}
	log.Info().Int("created", n).Msg("catalog seeded")
	return n, nil
}
