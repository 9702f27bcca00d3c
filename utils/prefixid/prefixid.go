package prefixid

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints lowercase ULID ids under a fixed prefix, e.g.
// "session_01h2x...". Session and document ids share this so both sort
// by creation time.
type Generator struct {
	prefix  string
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewGenerator(prefix string) *Generator {
	return &Generator{
		prefix:  prefix + "_",
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// New returns the next id. The monotonic entropy source is guarded
// because ulid.MonotonicEntropy is not safe for concurrent readers.
func (g *Generator) New() string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	g.mu.Unlock()
	return g.prefix + strings.ToLower(id.String())
}

// Parse validates an id minted by this generator and returns its ULID.
func (g *Generator) Parse(value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, g.prefix) {
		return ulid.ULID{}, fmt.Errorf("id %q does not start with %q", value, g.prefix)
	}
	return ulid.Parse(strings.TrimPrefix(value, g.prefix))
}

// IsValid reports whether value parses as an id of this generator.
func (g *Generator) IsValid(value string) bool {
	_, err := g.Parse(value)
	return err == nil
}

var (
	// Sessions mints conversation session ids.
	Sessions = NewGenerator("session")
	// Documents mints uploaded document ids.
	Documents = NewGenerator("doc")
)
