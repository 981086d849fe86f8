// Package store persists incidents and detection sessions.
package store

import (
	"context"

	"github.com/Veraticus/idlewatch/pkg/types"
)

// Store defines the persistence interface for idlewatch.
type Store interface {
	// Incidents are append-only.
	CreateIncident(ctx context.Context, incident *types.Incident) error
	ListIncidents(ctx context.Context, limit int) ([]*types.Incident, error)

	// Sessions
	CreateSession(ctx context.Context, session *types.SessionRecord) error
	ListSessions(ctx context.Context, limit int) ([]*types.SessionRecord, error)

	Close() error
}
