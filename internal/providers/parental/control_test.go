package parental

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/providers/filesystem"
	"github.com/minimind-os/minimind/internal/shared/types"
)

func newTestControl(t *testing.T) *Control {
	t.Helper()
	vfs, err := filesystem.NewVFS(t.TempDir(), logging.NewNop())
	require.NoError(t, err)
	return NewControl(vfs, logging.NewNop())
}

// daytime pins the wall clock to 10:00, outside the default bedtime
// window.
func daytime(c *Control) {
	c.now = func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}
}

func TestPasswordLifecycle(t *testing.T) {
	c := newTestControl(t)

	// Unset password accepts anything.
	assert.True(t, c.CheckPassword("whatever"))
	assert.False(t, c.PasswordSet())

	require.NoError(t, c.SetPassword("hunter2"))
	assert.True(t, c.PasswordSet())
	assert.True(t, c.CheckPassword("hunter2"))
	assert.False(t, c.CheckPassword("nope"))

	assert.ErrorIs(t, c.EnterParentMode("wrong"), ErrBadPassword)
	require.NoError(t, c.EnterParentMode("hunter2"))
	assert.True(t, c.ParentMode())

	c.ExitParentMode()
	assert.False(t, c.ParentMode())
}

func TestCheckSpawnAppPolicy(t *testing.T) {
	c := newTestControl(t)
	daytime(c)

	require.NoError(t, c.CheckSpawn("drawing"))
	require.NoError(t, c.CheckSpawn("Puzzle"))

	c.ToggleApp("puzzle", false)
	err := c.CheckSpawn("puzzle")
	assert.ErrorIs(t, err, ErrAppDisabled)

	c.ToggleApp("puzzle", true)
	assert.NoError(t, c.CheckSpawn("puzzle"))
}

func TestCheckSpawnBedtime(t *testing.T) {
	c := newTestControl(t)
	c.now = func() time.Time {
		// 21:30, inside the 20:00-07:00 window.
		return time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC)
	}

	assert.True(t, c.Bedtime())
	assert.ErrorIs(t, c.CheckSpawn("drawing"), ErrBedtime)

	// 06:30 still counts, the window spans midnight.
	c.now = func() time.Time {
		return time.Date(2026, 3, 15, 6, 30, 0, 0, time.UTC)
	}
	assert.True(t, c.Bedtime())

	// Parent mode overrides bedtime.
	require.NoError(t, c.EnterParentMode(""))
	assert.False(t, c.Bedtime())
	assert.NoError(t, c.CheckSpawn("drawing"))
}

func TestTimeLimitLocks(t *testing.T) {
	c := newTestControl(t)
	daytime(c)

	policy := c.Policy()
	policy.DailyLimitMinutes = 10
	c.UpdatePolicy(policy)

	var lockReason string
	c.OnLock(func(reason string) { lockReason = reason })

	assert.False(t, c.RecordUsage(9))
	assert.Equal(t, 1, c.RemainingMinutes())
	require.NoError(t, c.CheckSpawn("drawing"))

	assert.True(t, c.RecordUsage(1))
	assert.True(t, c.TimeLimitReached())
	assert.Equal(t, "Daily time limit reached", lockReason)

	locked, _ := c.Locked()
	assert.True(t, locked)
	assert.ErrorIs(t, c.CheckSpawn("drawing"), ErrLocked)

	// Locked time does not accrue usage.
	assert.False(t, c.RecordUsage(5))
	assert.Equal(t, 0, c.RemainingMinutes())
}

func TestForceLockAndUnlock(t *testing.T) {
	c := newTestControl(t)
	daytime(c)
	require.NoError(t, c.SetPassword("pw"))

	unlocked := false
	c.OnUnlock(func() { unlocked = true })

	c.ForceLock("")
	locked, reason := c.Locked()
	assert.True(t, locked)
	assert.Equal(t, "Locked by parent", reason)

	assert.ErrorIs(t, c.Unlock("wrong"), ErrBadPassword)
	require.NoError(t, c.Unlock("pw"))
	locked, _ = c.Locked()
	assert.False(t, locked)
	assert.True(t, unlocked)
}

func TestSettingsPersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	vfs, err := filesystem.NewVFS(dir, logging.NewNop())
	require.NoError(t, err)

	c := NewControl(vfs, logging.NewNop())
	require.NoError(t, c.SetPassword("pw"))
	policy := c.Policy()
	policy.BedtimeEnabled = false
	c.UpdatePolicy(policy)
	c.ToggleApp("music", false)
	c.RecordUsage(30)

	reloaded := NewControl(vfs, logging.NewNop())
	assert.True(t, reloaded.PasswordSet())
	assert.True(t, reloaded.CheckPassword("pw"))
	assert.False(t, reloaded.AppAllowed("music"))
	assert.Equal(t, 90, reloaded.RemainingMinutes())
}

func TestActivityLogRecords(t *testing.T) {
	c := newTestControl(t)
	daytime(c)

	c.RecordActivity("APP", "Launched drawing", "kid")
	c.RecordActivity("APP", "Closed drawing", "kid")

	entries := c.Activity(10)
	require.GreaterOrEqual(t, len(entries), 2)
	// Newest first.
	assert.Equal(t, "Closed drawing", entries[0].Details)
	assert.True(t, strings.HasPrefix(entries[0].ID, "evt_"))

	c.ClearActivity()
	assert.Empty(t, c.Activity(10))
}

func TestProviderParentModeGating(t *testing.T) {
	c := newTestControl(t)
	daytime(c)
	p := NewProvider(c)
	ctx := context.Background()
	callCtx := &types.Context{User: "kid"}

	// Activity log requires parent mode.
	res, err := p.Execute(ctx, "parental.activity.recent", nil, callCtx)
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = p.Execute(ctx, "parental.login", map[string]interface{}{"password": ""}, callCtx)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = p.Execute(ctx, "parental.activity.recent", nil, callCtx)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestProviderPolicyUpdate(t *testing.T) {
	c := newTestControl(t)
	daytime(c)
	p := NewProvider(c)
	ctx := context.Background()

	res, err := p.Execute(ctx, "parental.login", map[string]interface{}{"password": ""}, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = p.Execute(ctx, "parental.policy.update", map[string]interface{}{
		"policy": map[string]interface{}{
			"daily_limit_minutes": float64(45),
			"bedtime_enabled":     false,
		},
	}, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	policy := c.Policy()
	assert.Equal(t, 45, policy.DailyLimitMinutes)
	assert.False(t, policy.BedtimeEnabled)
	// Untouched fields keep their values.
	assert.Contains(t, policy.AllowedApps, "drawing")
}

func TestProviderStatus(t *testing.T) {
	c := newTestControl(t)
	daytime(c)
	p := NewProvider(c)

	res, err := p.Execute(context.Background(), "parental.status", nil, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, false, res.Data["parent_mode"])
	assert.Equal(t, 120, res.Data["daily_limit"])
}
