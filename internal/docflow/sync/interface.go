package sync

import (
	"context"

	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

// Store is the part of the local store the engine drives.
//
// *db.DB satisfies it.
type Store interface {
	// GetPending returns the records with status pending in the order they
	// should be attempted.
	GetPending(ctx context.Context) ([]*schema.Record, error)

	// UpdateStatus records the outcome of one attempt.
	//
	// Returns db.ErrNotFound when the record was deleted meanwhile; the engine
	// treats that as a benign race.
	UpdateStatus(ctx context.Context, id int64, status schema.Status, patch db.Patch) error

	// RequeueErrored moves error records below maxAttempts back to pending.
	RequeueErrored(ctx context.Context, maxAttempts int) (int, error)
}

var _ Store = (*db.DB)(nil)

// Connectivity reports whether the remote is believed reachable.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to the Connectivity interface.
type ConnectivityFunc func() bool

// Online calls f.
func (f ConnectivityFunc) Online() bool {
	return f()
}

// AlwaysOnline is a Connectivity that never reports offline.
var AlwaysOnline Connectivity = ConnectivityFunc(func() bool { return true })

// Indicator displays the engine state. It is purely observational.
type Indicator interface {
	SetIndicator(state IndicatorState)
}

// ResultObserver is implemented by indicators that also want pass results.
type ResultObserver interface {
	SyncComplete(res Result)
}
