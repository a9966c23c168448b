package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := g.GenerateString()
		require.False(t, seen[s], "duplicate ULID %s", s)
		seen[s] = true
	}
}

func TestPrefixedIDs(t *testing.T) {
	ev := NewEventID()
	assert.True(t, strings.HasPrefix(ev.String(), "evt_"))
	assert.True(t, IsValid(strings.TrimPrefix(ev.String(), "evt_")))

	sess := NewSessionID()
	assert.True(t, strings.HasPrefix(sess.String(), "sess_"))
}

func TestTimestamp(t *testing.T) {
	g := NewGenerator()
	s := g.GenerateString()

	ts, err := Timestamp(s)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestIsValid(t *testing.T) {
	assert.False(t, IsValid("not-a-ulid"))
	assert.True(t, IsValid(NewGenerator().GenerateString()))
}
