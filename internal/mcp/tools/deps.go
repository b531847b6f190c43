package tools

import (
	"github.com/usestring/stateless-mcp/internal/reqid"
)

// Deps contains all dependencies needed by tool handlers.
// A zero Deps is usable; nil fields fall back to their defaults.
type Deps struct {
	// NewProgressToken returns the correlation token attached to progress
	// notifications. Defaults to a random UUID.
	NewProgressToken func() string
}

func (d *Deps) progressToken() string {
	if d != nil && d.NewProgressToken != nil {
		return d.NewProgressToken()
	}
	return reqid.New()
}
