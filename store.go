package tablesess

import (
	"context"

	"github.com/minus-twelve/tablesess/types"
)

// Store is the contract session middleware relies on.
type Store interface {
	// Load returns the session stored under sid, or a nil session and a nil
	// error when there is none.
	Load(ctx context.Context, sid string) (types.Session, error)
	// Save overwrites the session stored under sid.
	Save(ctx context.Context, sid string, s types.Session) error
	// Refresh is a full overwrite, identical to Save.
	Refresh(ctx context.Context, sid string, s types.Session) error
	// Delete removes the session. Failures are observed, never returned.
	Delete(ctx context.Context, sid string)
	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
	// ClearExpired removes every session whose lifetime has elapsed.
	ClearExpired(ctx context.Context) (SweepResult, error)
	// Subscribe is an extension point for store events; it delivers nothing.
	Subscribe(event string)
}
