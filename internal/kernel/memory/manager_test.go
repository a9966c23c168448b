package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(1024, 256, nil)
}

func TestAllocateAndUsage(t *testing.T) {
	m := newTestManager()

	id, err := m.Allocate(1, "drawing", 100)
	require.NoError(t, err)
	assert.NotZero(t, id)

	u := m.Usage()
	assert.Equal(t, 1024, u.TotalKB)
	assert.Equal(t, 256, u.ReservedKB)
	assert.Equal(t, 356, u.UsedKB)
	assert.Equal(t, 668, u.FreeKB)
}

func TestAllocateInvalidSize(t *testing.T) {
	m := newTestManager()

	_, err := m.Allocate(1, "bad", 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = m.Allocate(1, "bad", -5)
	assert.ErrorIs(t, err, ErrInvalidSize)

	// A rejected request leaves usage unchanged.
	assert.Equal(t, 768, m.Usage().FreeKB)
}

func TestAllocateOutOfMemory(t *testing.T) {
	m := newTestManager()

	_, err := m.Allocate(1, "big", 650)
	require.NoError(t, err)

	_, err = m.Allocate(2, "too-big", 700)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	// Failed allocation must not change accounting.
	assert.Equal(t, 768-650, m.Usage().FreeKB)
}

func TestUserRegionBound(t *testing.T) {
	m := newTestManager()

	// Exactly the user region fits; one more KB does not.
	_, err := m.Allocate(1, "full", 768)
	require.NoError(t, err)

	_, err = m.Allocate(2, "one-more", 1)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestFreeIdempotent(t *testing.T) {
	m := newTestManager()

	id, err := m.Allocate(1, "music", 50)
	require.NoError(t, err)

	require.NoError(t, m.Free(id))
	// Second free of a once-live block is a no-op.
	assert.NoError(t, m.Free(id))
	// Never-issued IDs are rejected.
	assert.ErrorIs(t, m.Free(9999), ErrUnknownBlock)

	assert.Equal(t, 768, m.Usage().FreeKB)
}

func TestFirstFitReusesGap(t *testing.T) {
	m := newTestManager()

	a, err := m.Allocate(1, "a", 100)
	require.NoError(t, err)
	_, err = m.Allocate(2, "b", 100)
	require.NoError(t, err)

	require.NoError(t, m.Free(a))

	// New allocation that fits the gap should land at the freed offset.
	c, err := m.Allocate(3, "c", 80)
	require.NoError(t, err)

	var offsets []int
	for _, b := range m.Map() {
		if b.ID == c {
			offsets = append(offsets, b.OffsetKB)
		}
	}
	require.Len(t, offsets, 1)
	assert.Equal(t, 256, offsets[0])
}

func TestNoOverlap(t *testing.T) {
	m := newTestManager()

	for pid := uint32(1); pid <= 5; pid++ {
		_, err := m.Allocate(pid, "app", 64)
		require.NoError(t, err)
	}

	blocks := m.Map()
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		assert.GreaterOrEqual(t, cur.OffsetKB, prev.OffsetKB+prev.SizeKB,
			"blocks %d and %d overlap", prev.ID, cur.ID)
	}
}

func TestMapIncludesReserved(t *testing.T) {
	m := newTestManager()

	blocks := m.Map()
	require.Len(t, blocks, 1)
	assert.Equal(t, "System Reserved", blocks[0].Name)
	assert.Equal(t, 256, blocks[0].SizeKB)
	assert.Equal(t, 0, blocks[0].OffsetKB)
}

func TestProcessUsage(t *testing.T) {
	m := newTestManager()

	_, err := m.Allocate(7, "story", 120)
	require.NoError(t, err)

	assert.Equal(t, 120, m.ProcessUsage(7))
	assert.Equal(t, 0, m.ProcessUsage(8))
}
