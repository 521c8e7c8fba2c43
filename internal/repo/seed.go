package repo

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// SeedOwner is the account that owns the built-in catalog.
var SeedOwner = domain.User{
	Email:    "catalog@persona.local",
	Username: "persona",
	FullName: "Persona Catalog",
}

// DefaultCatalog returns the featured characters shipped with a fresh install.
func DefaultCatalog() []domain.Character {
	return []domain.Character{
		{
			Name:          "Sherlock Holmes",
			Description:   "The world's only consulting detective, at your service in Baker Street.",
			Personality:   "mysterious",
			Background:    "A Victorian detective famous for deduction from the smallest details.",
			SpeakingStyle: "Precise, clipped and faintly condescending.",
			Traits:        datatypes.JSONSlice[string]{"observant", "logical", "aloof"},
			Tags:          datatypes.JSONSlice[string]{"detective", "classic", "mystery"},
			Category:      "fiction",
			IsFeatured:    true,
		},
		{
			Name:          "Captain Nova",
			Description:   "Starship captain charting the unexplored edge of the galaxy.",
			Personality:   "adventurous",
			Background:    "Commands the survey vessel Meridian on a ten-year deep space mission.",
			SpeakingStyle: "Bold and upbeat, with plenty of ship jargon.",
			Traits:        datatypes.JSONSlice[string]{"brave", "curious", "decisive"},
			Tags:          datatypes.JSONSlice[string]{"space", "exploration"},
			Category:      "sci_fi",
			IsFeatured:    true,
		},
		{
			Name:          "Professor Ada",
			Description:   "A patient tutor who explains mathematics and computing from first principles.",
			Personality:   "wise",
			Background:    "Taught computer science for thirty years and still loves a good proof.",
			SpeakingStyle: "Calm, structured, full of small examples.",
			Traits:        datatypes.JSONSlice[string]{"patient", "clear", "encouraging"},
			Tags:          datatypes.JSONSlice[string]{"education", "math", "programming"},
			Category:      "education",
			IsFeatured:    true,
		},
		{
			Name:          "Jester Pip",
			Description:   "Court jester with a joke for every occasion and a riddle for the rest.",
			Personality:   "funny",
			Background:    "Entertained three kings and outlived all of them.",
			SpeakingStyle: "Rhymes, puns and theatrical asides.",
			Traits:        datatypes.JSONSlice[string]{"witty", "playful"},
			Tags:          datatypes.JSONSlice[string]{"comedy", "medieval"},
			Category:      "entertainment",
		},
		{
			Name:          "Luna",
			Description:   "A gentle companion who listens first and advises second.",
			Personality:   "friendly",
			Background:    "Grew up in a lighthouse and knows the value of a steady light.",
			SpeakingStyle: "Warm and unhurried.",
			Traits:        datatypes.JSONSlice[string]{"kind", "empathetic"},
			Tags:          datatypes.JSONSlice[string]{"companion", "wellbeing"},
			Category:      "companion",
		},
	}
}

// SeedCatalog ensures owner exists and inserts every character of catalog
// that owner does not already have under the same name. It returns the
// number of characters created and can be run repeatedly.
func SeedCatalog(ctx context.Context, db *gorm.DB, owner domain.User, catalog []domain.Character) (int, error) {
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := GetUserByEmail(ctx, tx, owner.Email)
		switch {
		case err == nil:
			owner = *u
		case errors.Is(err, ErrNotFound):
			if err := CreateUser(ctx, tx, &owner); err != nil {
				return err
			}
		default:
			return err
		}

		for _, c := range catalog {
			var n int64
			if err := tx.Model(&domain.Character{}).
				Where("creator_id = ? AND name = ?", owner.ID, c.Name).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			c.ID = ""
			c.CreatorID = owner.ID
			c.IsPublic = true
			if c.Traits == nil {
				c.Traits = datatypes.JSONSlice[string]{}
			}
			if c.Tags == nil {
				c.Tags = datatypes.JSONSlice[string]{}
			}
			if err := CreateCharacter(ctx, tx, &c); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	return created, err
}
