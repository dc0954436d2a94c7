package engine

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"caseline/internal/casework"
	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/events"
	"caseline/internal/repo"
)

type CategoryInput struct {
	Name             string          `json:"name" validate:"notblank,max=120"`
	Description      string          `json:"description,omitempty" validate:"max=2000"`
	SeverityLevel    domain.Severity `json:"severity_level" validate:"required,oneof=low medium high critical" enum:"low,medium,high,critical"`
	SuggestedActions []string        `json:"suggested_actions,omitempty" validate:"omitempty,dive,notblank"`
	ActorID          string          `json:"-"`
}

// CategoryPatch updates only the fields that are set.
type CategoryPatch struct {
	Name             *string          `json:"name,omitempty" validate:"omitempty,notblank,max=120"`
	Description      *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	SeverityLevel    *domain.Severity `json:"severity_level,omitempty" validate:"omitempty,oneof=low medium high critical" enum:"low,medium,high,critical"`
	SuggestedActions []string         `json:"suggested_actions,omitempty" validate:"omitempty,dive,notblank"`
	IsActive         *bool            `json:"is_active,omitempty"`
	ActorID          string           `json:"-"`
}

// ListActiveCategories is the "choose a category" listing.
func (e Engine) ListActiveCategories(ctx context.Context) ([]domain.Category, error) {
	return e.Store.ListCategories(ctx, repo.CategoryFilters{ActiveOnly: true})
}

// ListCategories includes inactive categories.
func (e Engine) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return e.Store.ListCategories(ctx, repo.CategoryFilters{})
}

func (e Engine) FindCategory(ctx context.Context, id string) (domain.Category, error) {
	c, err := e.Store.GetCategory(ctx, id)
	if err != nil {
		return c, notFound(err, "category", id)
	}
	return c, nil
}

// FilterBySeverity returns active categories at level. Unknown levels
// yield an empty list.
func (e Engine) FilterBySeverity(ctx context.Context, level domain.Severity) ([]domain.Category, error) {
	if !level.Valid() {
		return []domain.Category{}, nil
	}
	return e.Store.ListCategories(ctx, repo.CategoryFilters{ActiveOnly: true, Severity: level})
}

func (e Engine) CreateCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	c, err := e.createCategory(ctx, in)
	e.observe("create_category", err, logrus.Fields{"category": in.Name})
	return c, err
}

func (e Engine) createCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	if err := casework.Validate(in); err != nil {
		return domain.Category{}, err
	}
	now := e.now()
	c := domain.Category{
		ID:               e.newID(),
		Name:             strings.TrimSpace(in.Name),
		Description:      in.Description,
		SeverityLevel:    in.SeverityLevel,
		SuggestedActions: in.SuggestedActions,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if c.SuggestedActions == nil {
		c.SuggestedActions = []string{}
	}
	err := e.Store.Atomically(ctx, func(s repo.Store) error {
		if err := s.InsertCategory(ctx, c); err != nil {
			return err
		}
		_, err := e.appendEvent(ctx, s, events.CategoryCreated, events.KindCategory, c.ID, actorOr(in.ActorID, ""), events.Payload{
			"name": c.Name, "severity_level": c.SeverityLevel,
		})
		return err
	})
	if err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (e Engine) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (domain.Category, error) {
	c, err := e.updateCategory(ctx, id, patch)
	e.observe("update_category", err, logrus.Fields{"category_id": id})
	return c, err
}

func (e Engine) updateCategory(ctx context.Context, id string, patch CategoryPatch) (domain.Category, error) {
	if err := casework.Validate(patch); err != nil {
		return domain.Category{}, err
	}
	var out domain.Category
	err := e.Store.Atomically(ctx, func(s repo.Store) error {
		c, err := s.GetCategory(ctx, id)
		if err != nil {
			return notFound(err, "category", id)
		}
		changed := events.Payload{}
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
			changed["name"] = c.Name
		}
		if patch.Description != nil {
			c.Description = *patch.Description
			changed["description"] = c.Description
		}
		if patch.SeverityLevel != nil {
			c.SeverityLevel = *patch.SeverityLevel
			changed["severity_level"] = c.SeverityLevel
		}
		if patch.SuggestedActions != nil {
			c.SuggestedActions = patch.SuggestedActions
			changed["suggested_actions"] = c.SuggestedActions
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
			changed["is_active"] = c.IsActive
		}
		c.UpdatedAt = e.now()
		if err := s.UpdateCategory(ctx, c); err != nil {
			return err
		}
		if _, err := e.appendEvent(ctx, s, events.CategoryUpdated, events.KindCategory, c.ID, actorOr(patch.ActorID, ""), changed); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// SeedCategories inserts the catalog when the registry is empty and
// returns how many categories were created.
func (e Engine) SeedCategories(ctx context.Context, catalog []config.CategorySeed) (int, error) {
	if len(catalog) == 0 {
		return 0, nil
	}
	created := 0
	err := e.Store.Atomically(ctx, func(s repo.Store) error {
		existing, err := s.ListCategories(ctx, repo.CategoryFilters{})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		now := e.now()
		for _, seed := range catalog {
			c := domain.Category{
				ID:               e.newID(),
				Name:             seed.Name,
				Description:      seed.Description,
				SeverityLevel:    seed.Severity,
				SuggestedActions: seed.SuggestedActions,
				IsActive:         true,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := s.InsertCategory(ctx, c); err != nil {
				return err
			}
			if _, err := e.appendEvent(ctx, s, events.CategoryCreated, events.KindCategory, c.ID, SystemActor, events.Payload{
				"name": c.Name, "severity_level": c.SeverityLevel, "seeded": true,
			}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		e.log().WithField("count", created).Info("seeded category catalog")
	}
	return created, nil
}
