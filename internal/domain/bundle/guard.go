package bundle

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// Guard detects bundles that already have a purchased label. A bloom filter
// answers the common "never purchased" case without touching the ledger;
// positives are confirmed against the ledger.
type Guard struct {
	ledger Ledger

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewGuard creates a Guard sized for capacity bundle ids at a 0.1% false
// positive rate.
func NewGuard(ledger Ledger, capacity uint) *Guard {
	if capacity == 0 {
		capacity = 100_000
	}
	return &Guard{
		ledger: ledger,
		filter: bloom.NewWithEstimates(capacity, 0.001),
	}
}

// Warm adds already recorded bundle ids to the filter.
func (g *Guard) Warm(ids []ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.filter.AddString(string(id))
	}
}

// Add marks a bundle as purchased.
func (g *Guard) Add(id ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.AddString(string(id))
}

// Existing returns the recorded label for the bundle, or nil when there is none.
func (g *Guard) Existing(ctx context.Context, id ID) (*Entry, error) {
	g.mu.Lock()
	maybe := g.filter.TestString(string(id))
	g.mu.Unlock()
	if !maybe {
		return nil, nil
	}

	e, err := g.ledger.Latest(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup ledger")
	}
	return e, nil
}
