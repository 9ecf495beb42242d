package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const settingsCacheKeyFmt = "gov:settings:%s"

// SettingsService serves tenant settings with a short-lived Redis cache in
// front of the repository. Concurrent cache misses for the same tenant are
// collapsed into one repository load.
type SettingsService struct {
	repo   SettingsRepository
	cache  redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewSettingsService constructs the service. A nil cache client disables
// caching; every Get then hits the repository.
func NewSettingsService(repo SettingsRepository, cache redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *SettingsService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettingsService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Get returns the tenant's settings, falling back to DefaultSettings when the
// tenant never stored any. Cache failures degrade to repository reads.
func (s *SettingsService) Get(ctx context.Context, tenantID string) (Settings, error) {
	key := fmt.Sprintf(settingsCacheKeyFmt, tenantID)
	if s.cache != nil {
		payload, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var cached Settings
			if err := json.Unmarshal(payload, &cached); err == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("settings cache read failed", slog.Any("error", err))
		}
	}

	resultChan := s.group.DoChan(tenantID, func() (interface{}, error) {
		settings, err := s.load(ctx, tenantID)
		if err != nil {
			return Settings{}, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(settings); err == nil {
				if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
					s.logger.Warn("settings cache write failed", slog.Any("error", err))
				}
			}
		}
		return settings, nil
	})
	select {
	case <-ctx.Done():
		return Settings{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Settings{}, res.Err
		}
		return res.Val.(Settings), nil
	}
}

func (s *SettingsService) load(ctx context.Context, tenantID string) (Settings, error) {
	settings, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrSettingsNotFound) {
			return DefaultSettings(tenantID), nil
		}
		return Settings{}, err
	}
	return settings, nil
}

// Update replaces the tenant's settings. The acting role must hold the
// settings capability; the denial comes back as a Decision, not an error.
func (s *SettingsService) Update(ctx context.Context, actorRole string, settings Settings) (Decision, error) {
	if d := AuthorizeSettingsChange(actorRole); !d.Allowed {
		return d, nil
	}
	if settings.TenantID == "" {
		return Decision{}, errors.New("governance: settings tenant id required")
	}
	if err := validateCeilings(settings); err != nil {
		return Decision{}, err
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return Decision{}, err
	}
	s.invalidate(ctx, settings.TenantID)
	return Allow(), nil
}

// Reset restores the tenant to DefaultSettings. Settings rows are never
// deleted; reset overwrites in place.
func (s *SettingsService) Reset(ctx context.Context, actorRole, tenantID string) (Decision, error) {
	if d := AuthorizeSettingsChange(actorRole); !d.Allowed {
		return d, nil
	}
	if tenantID == "" {
		return Decision{}, errors.New("governance: settings tenant id required")
	}
	if err := s.repo.Upsert(ctx, DefaultSettings(tenantID)); err != nil {
		return Decision{}, err
	}
	s.invalidate(ctx, tenantID)
	return Allow(), nil
}

func (s *SettingsService) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	key := fmt.Sprintf(settingsCacheKeyFmt, tenantID)
	if err := s.cache.Del(ctx, key).Err(); err != nil && s.logger != nil {
		s.logger.Warn("settings cache invalidate failed", slog.Any("error", err))
	}
}

func validateCeilings(s Settings) error {
	switch {
	case s.MaxRunsPerDayTenant <= 0:
		return errors.New("governance: maxRunsPerDayTenant must be positive")
	case s.MaxRunsPerDayUser <= 0:
		return errors.New("governance: maxRunsPerDayUser must be positive")
	case s.MaxConcurrentRuns <= 0:
		return errors.New("governance: maxConcurrentRuns must be positive")
	case s.RetentionDays < 0:
		return errors.New("governance: retentionDays must not be negative")
	}
	return nil
}
