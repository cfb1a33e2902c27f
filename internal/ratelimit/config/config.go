// Package config holds the role -> rate limit configuration registry.
package config

import (
	"fmt"
	"sync"
	"time"

	"quotagate/internal/ratelimit/models"
)

// Defaults for the built-in roles. The paid limit being lower than the
// registered limit matches what production has always enforced; see
// DESIGN.md before changing the ordering.
func builtinConfigs() map[models.Role]models.Config {
	return map[models.Role]models.Config{
		models.RoleAnonymous: {
			Limit:                 5,
			Window:                24 * time.Hour,
			DisplayName:           "Anonymous",
			UseBrowserFingerprint: true,
			HandleSharedNetworks:  true,
			UseGuestCookie:        true,
		},
		models.RoleRegistered: {
			Limit:       9000,
			Window:      24 * time.Hour,
			DisplayName: "Registered",
		},
		models.RolePaid: {
			Limit:       100,
			Window:      24 * time.Hour,
			DisplayName: "Paid",
		},
	}
}

// Registry maps roles to their rate limit configuration. The three built-in
// roles are seeded at construction; additional roles may be registered at
// runtime (additive only, last write wins). Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[models.Role]models.Config
}

// NewRegistry creates a registry seeded with the built-in role configs.
func NewRegistry() *Registry {
	return &Registry{configs: builtinConfigs()}
}

// Get returns the config for a role. Unknown roles are a programmer error
// and return an error rather than a silent default.
func (r *Registry) Get(role models.Role) (models.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[role]
	if !ok {
		return models.Config{}, fmt.Errorf("no rate limit config registered for role %q", role)
	}
	return cfg, nil
}

// Register upserts the config for a role. Takes effect for subsequent
// checks only; a limiter already cached for the role keeps its original
// config until the process restarts.
func (r *Registry) Register(role models.Role, cfg models.Config) error {
	if role == "" {
		return fmt.Errorf("role is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config for role %q: %w", role, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[role] = cfg
	return nil
}

// Roles returns all registered role names.
func (r *Registry) Roles() []models.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]models.Role, 0, len(r.configs))
	for role := range r.configs {
		roles = append(roles, role)
	}
	return roles
}
