// Package ids generates entity and execution identifiers.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces ids. The zero value is not usable; construct with New.
type Generator struct {
	now func() time.Time
}

// New returns a Generator using the wall clock.
func New() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock returns a Generator with an injected clock for tests.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// NewID returns a random UUID string.
func (g *Generator) NewID() string {
	return uuid.NewString()
}

// NewExecutionID returns an id of the form exec_<unixMs>_<8-byte-hex>.
// The timestamp prefix keeps ids sortable by creation time.
func (g *Generator) NewExecutionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to a
		// uuid-derived suffix rather than panicking mid-execution.
		copy(buf, uuid.New().NodeID())
	}
	return fmt.Sprintf("exec_%d_%s", g.now().UnixMilli(), hex.EncodeToString(buf))
}
