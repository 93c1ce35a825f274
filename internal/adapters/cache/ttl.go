package cache

import "time"

// Namespaces used by the service.
const (
	NamespaceSystemConfigs = "system-configs"
	NamespaceCategories    = "categories"
	NamespaceGames         = "games"
	NamespaceAnalytics     = "analytics"
	NamespacePositions     = "game-position-history"
)

const defaultTTL = 5 * time.Minute

// TTLPolicy picks a TTL per namespace.
type TTLPolicy struct {
	Default      time.Duration
	PerNamespace map[string]time.Duration
}

// DefaultTTLPolicy returns the built-in TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default: defaultTTL,
		PerNamespace: map[string]time.Duration{
			NamespaceSystemConfigs: 30 * time.Minute,
			NamespaceCategories:    5 * time.Minute,
			NamespaceGames:         2 * time.Minute,
			NamespaceAnalytics:     time.Minute,
			NamespacePositions:     time.Minute,
		},
	}
}

// For returns the TTL for ns.
func (p TTLPolicy) For(ns string) time.Duration {
	if d, ok := p.PerNamespace[ns]; ok && d > 0 {
		return d
	}
	if p.Default > 0 {
		return p.Default
	}
	return defaultTTL
}

// Max returns the longest TTL the policy can hand out.
func (p TTLPolicy) Max() time.Duration {
	longest := p.For("")
	for _, d := range p.PerNamespace {
		if d > longest {
			longest = d
		}
	}
	return longest
}
