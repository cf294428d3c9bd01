package bundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Existing(t *testing.T) {
	ledger := newLedger(Entry{BundleID: "bundle_a", TrackingNumber: "1ZA"})
	g := NewGuard(ledger, 1000)

	e, err := g.Existing(context.Background(), "bundle_a")
	require.NoError(t, err)
	assert.Nil(t, e, "cold filter never consults the ledger")
	assert.Zero(t, ledger.lookups)

	g.Warm([]ID{"bundle_a"})
	e, err = g.Existing(context.Background(), "bundle_a")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "1ZA", e.TrackingNumber)
	assert.Equal(t, 1, ledger.lookups)

	g.Add("bundle_gone")
	e, err = g.Existing(context.Background(), "bundle_gone")
	require.NoError(t, err)
	assert.Nil(t, e, "filter hit without a ledger entry is not a duplicate")
}
