// Package services – CharacterService
//
// This file implements CharacterService, which owns the character catalog:
// listing with search/sort/pagination, curated lists, creator-only mutation
// and like toggling. Popularity counters are changed only through atomic SQL
// expressions in the repo layer.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/ai"
	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/repo"
	"github.com/tbourn/persona-chat-backend/internal/utils"
)

// CharacterService provides catalog operations over characters.
type CharacterService struct {
	DB *gorm.DB

	DefaultLimit  int
	MaxLimit      int
	FeaturedLimit int

	// LabelLocale drives title-casing of category labels.
	LabelLocale language.Tag
}

// NewCharacterService constructs a CharacterService with default paging.
func NewCharacterService(db *gorm.DB) *CharacterService {
	return &CharacterService{
		DB:            db,
		DefaultLimit:  20,
		MaxLimit:      100,
		FeaturedLimit: 12,
		LabelLocale:   language.English,
	}
}

// CharacterQuery are the list filters accepted from callers.
type CharacterQuery struct {
	Page      int
	Limit     int
	Category  string
	Search    string
	Sort      string
	CreatorID string
}

// CharacterPage is one page of the catalog.
type CharacterPage struct {
	Characters []domain.Character `json:"characters"`
	Pagination utils.Pagination   `json:"pagination"`
}

// Category is a category in use together with its public character count.
type Category struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// CharacterInput carries create/update fields. Nil means "not provided".
type CharacterInput struct {
	Name          *string
	Description   *string
	Personality   *string
	Background    *string
	SpeakingStyle *string
	Traits        *[]string
	Tags          *[]string
	Category      *string
	AvatarURL     *string
	IsPublic      *bool
	AIProvider    *string
	AIModel       *string
}

// LikeResult reports the state after a like toggle.
type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

// List returns a page of characters visible to viewerID ("" for anonymous).
func (s *CharacterService) List(ctx context.Context, viewerID string, q CharacterQuery) (*CharacterPage, error) {
	page, limit := utils.ClampPage(q.Page, q.Limit, s.DefaultLimit, s.MaxLimit)
	f := repo.CharacterFilter{
		Category:  strings.TrimSpace(q.Category),
		Search:    strings.TrimSpace(q.Search),
		Sort:      normalizeSort(q.Sort),
		CreatorID: strings.TrimSpace(q.CreatorID),
		ViewerID:  viewerID,
	}

	total, err := repo.CountCharacters(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	items := []domain.Character{}
	if total > 0 {
		if items, err = repo.ListCharacters(ctx, s.DB, f, utils.Offset(page, limit), limit); err != nil {
			return nil, err
		}
	}
	return &CharacterPage{Characters: items, Pagination: utils.NewPagination(page, limit, total)}, nil
}

func normalizeSort(sort string) string {
	switch sort = strings.ToLower(strings.TrimSpace(sort)); sort {
	case repo.SortNewest, repo.SortRating, repo.SortName:
		return sort
	default:
		return repo.SortPopular
	}
}

// Featured returns curated public characters.
func (s *CharacterService) Featured(ctx context.Context) ([]domain.Character, error) {
	return repo.ListFeatured(ctx, s.DB, s.FeaturedLimit)
}

// Categories lists the categories in use by public characters.
func (s *CharacterService) Categories(ctx context.Context) ([]Category, error) {
	rows, err := repo.ListCategories(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	caser := cases.Title(s.LabelLocale)
	out := make([]Category, 0, len(rows))
	for _, r := range rows {
		label := strings.NewReplacer("_", " ", "-", " ").Replace(r.Category)
		out = append(out, Category{Name: r.Category, Label: caser.String(label), Count: r.Count})
	}
	return out, nil
}

// Get returns a character and records a view. Private characters are only
// visible to their creator.
func (s *CharacterService) Get(ctx context.Context, id, viewerID string) (*domain.Character, error) {
	c, err := s.visible(ctx, s.DB, id, viewerID)
	if err != nil {
		return nil, err
	}
	if err := repo.IncrementViewCount(ctx, s.DB, id); err != nil {
		return nil, err
	}
	c.ViewCount++
	return c, nil
}

func (s *CharacterService) visible(ctx context.Context, db *gorm.DB, id, viewerID string) (*domain.Character, error) {
	c, err := repo.GetCharacter(ctx, db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}
	if !c.IsPublic && c.CreatorID != viewerID {
		return nil, ErrCharacterNotFound
	}
	return c, nil
}

// Create stores a new character owned by ownerID.
func (s *CharacterService) Create(ctx context.Context, ownerID string, in CharacterInput) (*domain.Character, error) {
	c := &domain.Character{
		CreatorID: ownerID,
		Traits:    datatypes.JSONSlice[string]{},
		Tags:      datatypes.JSONSlice[string]{},
		IsPublic:  true,
	}
	if _, err := applyCharacterInput(c, in); err != nil {
		return nil, err
	}
	if c.Name == "" || c.Description == "" {
		return nil, fmt.Errorf("%w: name and description are required", ErrInvalidInput)
	}
	if err := repo.CreateCharacter(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return repo.GetCharacter(ctx, s.DB, c.ID)
}

// Update applies a partial update. Only the creator may update.
func (s *CharacterService) Update(ctx context.Context, id, callerID string, in CharacterInput) (*domain.Character, error) {
	c, err := s.owned(ctx, s.DB, id, callerID)
	if err != nil {
		return nil, err
	}
	fields, err := applyCharacterInput(c, in)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := repo.UpdateCharacter(ctx, s.DB, id, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrCharacterNotFound
			}
			return nil, err
		}
	}
	return repo.GetCharacter(ctx, s.DB, id)
}

// Delete hard-deletes a character and its dependents. Only the creator may
// delete.
func (s *CharacterService) Delete(ctx context.Context, id, callerID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.owned(ctx, tx, id, callerID); err != nil {
			return err
		}
		if err := repo.DeleteCharacter(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCharacterNotFound
			}
			return err
		}
		return nil
	})
}

// owned returns the character when callerID created it. Rows the caller
// cannot see are not found rather than forbidden.
func (s *CharacterService) owned(ctx context.Context, db *gorm.DB, id, callerID string) (*domain.Character, error) {
	c, err := s.visible(ctx, db, id, callerID)
	if err != nil {
		return nil, err
	}
	if c.CreatorID != callerID {
		return nil, ErrForbidden
	}
	return c, nil
}

// ToggleLike likes the character if userID has not, otherwise unlikes it.
// The join row and the counter change in one transaction.
func (s *CharacterService) ToggleLike(ctx context.Context, id, userID string) (*LikeResult, error) {
	var res LikeResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.visible(ctx, tx, id, userID); err != nil {
			return err
		}
		_, err := repo.FindLike(ctx, tx, id, userID)
		switch {
		case err == nil:
			if err := repo.DeleteLike(ctx, tx, id, userID); err != nil {
				return err
			}
			if err := repo.AdjustLikeCount(ctx, tx, id, -1); err != nil {
				return err
			}
		case errors.Is(err, repo.ErrNotFound):
			if err := repo.CreateLike(ctx, tx, id, userID); err != nil {
				return err
			}
			if err := repo.AdjustLikeCount(ctx, tx, id, 1); err != nil {
				return err
			}
			res.Liked = true
		default:
			return err
		}
		n, err := repo.LikeCount(ctx, tx, id)
		res.LikeCount = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// applyCharacterInput copies provided fields onto c and returns the matching
// column map for partial updates.
func applyCharacterInput(c *domain.Character, in CharacterInput) (map[string]any, error) {
	fields := map[string]any{}
	setStr := func(col string, src *string, dst *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
			fields[col] = *dst
		}
	}
	setStr("name", in.Name, &c.Name)
	setStr("description", in.Description, &c.Description)
	setStr("personality", in.Personality, &c.Personality)
	setStr("background", in.Background, &c.Background)
	setStr("speaking_style", in.SpeakingStyle, &c.SpeakingStyle)
	setStr("category", in.Category, &c.Category)
	setStr("avatar_url", in.AvatarURL, &c.AvatarURL)
	setStr("ai_model", in.AIModel, &c.AIModel)

	if in.Name != nil && c.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if in.Description != nil && c.Description == "" {
		return nil, fmt.Errorf("%w: description cannot be empty", ErrInvalidInput)
	}
	if in.AIProvider != nil {
		p := strings.ToLower(strings.TrimSpace(*in.AIProvider))
		if p != "" && !ai.Supported(p) {
			return nil, fmt.Errorf("%w: unsupported ai_provider %q", ErrInvalidInput, p)
		}
		c.AIProvider = p
		fields["ai_provider"] = p
	}
	if in.Traits != nil {
		c.Traits = cleanList(*in.Traits)
		fields["traits"] = c.Traits
	}
	if in.Tags != nil {
		c.Tags = cleanList(*in.Tags)
		fields["tags"] = c.Tags
	}
	if in.IsPublic != nil {
		c.IsPublic = *in.IsPublic
		fields["is_public"] = c.IsPublic
	}
	return fields, nil
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(in []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
