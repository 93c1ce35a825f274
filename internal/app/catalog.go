package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/arcade/internal/adapters/cache"
	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

// GamePatch is a partial game update. Positions change through SetPosition.
type GamePatch struct {
	Title      *string
	CategoryID *string
	IsActive   *bool
}

// CategoryPatch is a partial category update.
type CategoryPatch struct {
	Name        *string
	Description *string
}

// ConfigPatch is a partial config update.
type ConfigPatch struct {
	Value       *string
	Description *string
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ---- system configs ----

// ListConfigs returns every config entry, through the cache.
func (s *Service) ListConfigs(ctx context.Context) ([]model.SystemConfig, error) {
	key := cache.Key(cache.NamespaceSystemConfigs, map[string]string{"view": "all"})
	return cache.Remember(ctx, s.cache, cache.NamespaceSystemConfigs, key, s.configs.List)
}

// GetConfig returns one entry, cached under system-configs:key:{key}.
func (s *Service) GetConfig(ctx context.Context, key string) (*model.SystemConfig, error) {
	ck := cache.Key(cache.NamespaceSystemConfigs, map[string]string{"key": key})
	return cache.Remember(ctx, s.cache, cache.NamespaceSystemConfigs, ck, func(ctx context.Context) (*model.SystemConfig, error) {
		return s.configs.Get(ctx, key)
	})
}

// CreateConfig stores a new entry.
func (s *Service) CreateConfig(ctx context.Context, c model.SystemConfig) (*model.SystemConfig, error) {
	const op = "service.CreateConfig"
	c.Key = strings.TrimSpace(c.Key)
	if c.Key == "" {
		return nil, apperr.Invalid(op, apperr.FieldError{Field: "key", Message: "key is required"})
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.configs.Create(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.NamespaceSystemConfigs)
	s.log.Info(ctx, "system config created", logger.String("key", c.Key))
	return &c, nil
}

// UpdateConfig changes an entry.
func (s *Service) UpdateConfig(ctx context.Context, key string, p ConfigPatch) (*model.SystemConfig, error) {
	c, err := s.configs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	c.UpdatedAt = s.now()
	if err := s.configs.Update(ctx, *c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.NamespaceSystemConfigs)
	return c, nil
}

// DeleteConfig removes an entry.
func (s *Service) DeleteConfig(ctx context.Context, key string) error {
	if err := s.configs.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, cache.NamespaceSystemConfigs)
	return nil
}

// ---- categories ----

// ListCategories returns a page of categories, through the cache.
func (s *Service) ListCategories(ctx context.Context, f model.CategoryFilter) (types.Page[model.Category], error) {
	f.Page, f.Limit = s.page(f.Page, f.Limit)
	key := cache.Key(cache.NamespaceCategories, map[string]string{
		"search": f.Search,
		"page":   strconv.Itoa(f.Page),
		"limit":  strconv.Itoa(f.Limit),
	})
	return cache.Remember(ctx, s.cache, cache.NamespaceCategories, key, func(ctx context.Context) (types.Page[model.Category], error) {
		return s.catalog.ListCategories(ctx, f)
	})
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return s.catalog.GetCategory(ctx, id)
}

// CreateCategory stores a new category.
func (s *Service) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	const op = "service.CreateCategory"
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, apperr.Invalid(op, apperr.FieldError{Field: "name", Message: "name is required"})
	}
	now := s.now()
	c.ID, c.CreatedAt, c.UpdatedAt = newID(), now, now
	if err := s.catalog.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.NamespaceCategories, cache.NamespaceGames)
	return &c, nil
}

// UpdateCategory changes a category.
func (s *Service) UpdateCategory(ctx context.Context, id string, p CategoryPatch) (*model.Category, error) {
	const op = "service.UpdateCategory"
	c, err := s.catalog.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperr.Invalid(op, apperr.FieldError{Field: "name", Message: "name must not be empty"})
		}
		c.Name = name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	c.UpdatedAt = s.now()
	if err := s.catalog.UpdateCategory(ctx, *c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.NamespaceCategories, cache.NamespaceGames)
	return c, nil
}

// DeleteCategory removes a category. Its games become uncategorised.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.catalog.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.NamespaceCategories, cache.NamespaceGames)
	return nil
}

// ---- games ----

// ListGames returns a page of games ordered by position, through the cache.
func (s *Service) ListGames(ctx context.Context, f model.GameFilter) (types.Page[model.Game], error) {
	f.Page, f.Limit = s.page(f.Page, f.Limit)
	key := cache.Key(cache.NamespaceGames, map[string]string{
		"category": f.CategoryID,
		"search":   f.Search,
		"active":   strconv.FormatBool(f.ActiveOnly),
		"page":     strconv.Itoa(f.Page),
		"limit":    strconv.Itoa(f.Limit),
	})
	return cache.Remember(ctx, s.cache, cache.NamespaceGames, key, func(ctx context.Context) (types.Page[model.Game], error) {
		return s.catalog.ListGames(ctx, f)
	})
}

// GetGame returns one game.
func (s *Service) GetGame(ctx context.Context, id string) (*model.Game, error) {
	return s.catalog.GetGame(ctx, id)
}

// CreateGame stores a new game. A requested position must be free.
func (s *Service) CreateGame(ctx context.Context, g model.Game) (*model.Game, error) {
	const op = "service.CreateGame"
	g.Title = strings.TrimSpace(g.Title)
	var fields []apperr.FieldError
	if g.Title == "" {
		fields = append(fields, apperr.FieldError{Field: "title", Message: "title is required"})
	}
	if g.Position != nil && *g.Position < 1 {
		fields = append(fields, apperr.FieldError{Field: "position", Message: "position must be positive"})
	}
	if g.Position != nil && !g.IsActive {
		fields = append(fields, apperr.FieldError{Field: "position", Message: "inactive games cannot hold a position"})
	}
	if len(fields) > 0 {
		return nil, apperr.Invalid(op, fields...)
	}
	now := s.now()
	g.ID, g.CreatedAt, g.UpdatedAt = newID(), now, now
	if err := s.catalog.CreateGame(ctx, g); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.NamespaceGames)
	return &g, nil
}

// UpdateGame changes a game. Deactivating frees its position.
func (s *Service) UpdateGame(ctx context.Context, id string, p GamePatch) (*model.Game, error) {
	const op = "service.UpdateGame"
	g, err := s.catalog.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, apperr.Invalid(op, apperr.FieldError{Field: "title", Message: "title must not be empty"})
		}
		g.Title = title
	}
	if p.CategoryID != nil {
		g.CategoryID = *p.CategoryID
	}
	if p.IsActive != nil {
		g.IsActive = *p.IsActive
		if !g.IsActive {
			g.Position = nil
		}
	}
	g.UpdatedAt = s.now()
	if err := s.catalog.UpdateGame(ctx, *g); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.NamespaceGames)
	return g, nil
}

// DeactivateGame hides a game and frees its position.
func (s *Service) DeactivateGame(ctx context.Context, id string) error {
	if err := s.catalog.DeactivateGame(ctx, id, s.now()); err != nil {
		return err
	}
	s.invalidate(ctx, cache.NamespaceGames)
	return nil
}

// ---- snapshot version ----

// CDNVersion returns the published snapshot version.
func (s *Service) CDNVersion(ctx context.Context) (model.CDNVersion, error) {
	return s.cdn.Version(ctx)
}

func (s *Service) mirrorSnapshot(v model.CDNVersion) {
	metrics.UpdateSnapshotVersion(v.Version)
	if s.snapshot == nil {
		return
	}
	s.snapshot.SetVersion(v.Version)
	s.snapshot.SetEnabled(v.Enabled)
}

// PublishCDN bumps the snapshot version so clients stop using cached
// documents.
func (s *Service) PublishCDN(ctx context.Context, enabled *bool) (model.CDNVersion, error) {
	v, err := s.cdn.Publish(ctx, enabled, s.now())
	if err != nil {
		return v, err
	}
	s.mirrorSnapshot(v)
	s.log.Info(ctx, "snapshot version published", logger.Int64("version", v.Version), logger.Bool("enabled", v.Enabled))
	return v, nil
}
