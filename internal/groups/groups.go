// Package groups looks up permission-group data from the proxy-side plugin.
package groups

import (
	"context"

	"github.com/google/uuid"
)

// Provider answers permission-group queries for players. The reconciler only
// ever needs a player's current primary group and the groups of the tracked
// rank ladder.
type Provider interface {
	// PrimaryGroup returns the player's current primary group name.
	PrimaryGroup(ctx context.Context, id uuid.UUID) (string, error)

	// TrackGroups returns the ordered group names of the named track.
	TrackGroups(ctx context.Context, track string) ([]string, error)
}
