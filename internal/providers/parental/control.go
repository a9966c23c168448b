package parental

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/providers/filesystem"
)

// Spawn gate rejections.
var (
	ErrLocked      = errors.New("system is locked")
	ErrBedtime     = errors.New("bedtime is active")
	ErrTimeLimit   = errors.New("daily time limit reached")
	ErrAppDisabled = errors.New("app is disabled")
	ErrBadPassword = errors.New("wrong password")
)

const settingsPath = "/system/parental.json"

// Policy holds the parent-configured rules.
type Policy struct {
	AllowedApps         []string `json:"allowed_apps"`
	DailyLimitMinutes   int      `json:"daily_limit_minutes"`
	SessionLimitMinutes int      `json:"session_limit_minutes"`
	BedtimeEnabled      bool     `json:"bedtime_enabled"`
	BedtimeStart        string   `json:"bedtime_start"`
	BedtimeEnd          string   `json:"bedtime_end"`
}

// DefaultPolicy allows the four stock apps with a two hour daily
// limit and an overnight bedtime window.
func DefaultPolicy() Policy {
	return Policy{
		AllowedApps:         []string{"drawing", "stories", "music", "puzzle"},
		DailyLimitMinutes:   120,
		SessionLimitMinutes: 30,
		BedtimeEnabled:      true,
		BedtimeStart:        "20:00",
		BedtimeEnd:          "07:00",
	}
}

// Status is the snapshot the parent panel reads.
type Status struct {
	ParentMode       bool   `json:"parent_mode"`
	Locked           bool   `json:"locked"`
	LockReason       string `json:"lock_reason,omitempty"`
	Bedtime          bool   `json:"bedtime"`
	UsageMinutes     int    `json:"usage_minutes"`
	RemainingMinutes int    `json:"remaining_minutes"`
	DailyLimit       int    `json:"daily_limit"`
	PasswordSet      bool   `json:"password_set"`
}

type settings struct {
	PasswordHash string  `json:"password_hash,omitempty"`
	Policy       Policy  `json:"policy"`
	UsageMinutes float64 `json:"usage_minutes"`
	LastSaveDate string  `json:"last_save_date"`
}

// Control enforces the parental policy: password-gated parent mode,
// per-app permissions, a daily usage budget, and a bedtime window.
// It persists its settings through the filesystem sandbox so the
// parent panel and a restart both see the same state.
type Control struct {
	mu     sync.RWMutex
	vfs    *filesystem.VFS
	log    *activityLog
	logger *logging.Logger
	now    func() time.Time

	passwordHash []byte
	policy       Policy
	parentMode   bool
	locked       bool
	lockReason   string
	usageMinutes float64
	lastBreak    time.Time

	onLock   []func(reason string)
	onUnlock []func()
}

// NewControl loads persisted settings, resetting the usage budget
// when the saved day differs from today.
func NewControl(vfs *filesystem.VFS, logger *logging.Logger) *Control {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Control{
		vfs:    vfs,
		logger: logger,
		now:    time.Now,
		policy: DefaultPolicy(),
	}
	c.log = newActivityLog(vfs, logger)
	c.lastBreak = c.now()
	c.load()
	return c
}

// SetPassword hashes and stores the parent password.
func (c *Control) SetPassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	c.mu.Lock()
	c.passwordHash = hash
	c.saveLocked()
	c.mu.Unlock()

	c.log.record("SECURITY", "Parent password set", "parent")
	return nil
}

// CheckPassword verifies a candidate. An unset password accepts
// anything so first-run setup is reachable.
func (c *Control) CheckPassword(password string) bool {
	c.mu.RLock()
	hash := c.passwordHash
	c.mu.RUnlock()

	if len(hash) == 0 {
		return true
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// PasswordSet reports whether a parent password exists.
func (c *Control) PasswordSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.passwordHash) > 0
}

// EnterParentMode switches to parent mode after password check.
func (c *Control) EnterParentMode(password string) error {
	if !c.CheckPassword(password) {
		c.log.record("SECURITY", "Failed parent login attempt", "kid")
		return ErrBadPassword
	}
	c.mu.Lock()
	c.parentMode = true
	c.mu.Unlock()
	c.log.record("SECURITY", "Parent mode activated", "parent")
	return nil
}

// ExitParentMode returns to kid mode.
func (c *Control) ExitParentMode() {
	c.mu.Lock()
	c.parentMode = false
	c.mu.Unlock()
	c.log.record("SECURITY", "Parent mode deactivated", "parent")
}

// ParentMode reports the current mode.
func (c *Control) ParentMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parentMode
}

// Policy returns a copy of the active policy.
func (c *Control) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.policy
	p.AllowedApps = append([]string(nil), c.policy.AllowedApps...)
	return p
}

// UpdatePolicy replaces the policy wholesale.
func (c *Control) UpdatePolicy(p Policy) {
	c.mu.Lock()
	c.policy = p
	c.saveLocked()
	c.mu.Unlock()
	c.log.record("POLICY", "Policy updated", "parent")
}

// ToggleApp enables or disables one app by name.
func (c *Control) ToggleApp(app string, enabled bool) {
	app = strings.ToLower(app)

	c.mu.Lock()
	idx := -1
	for i, a := range c.policy.AllowedApps {
		if strings.EqualFold(a, app) {
			idx = i
			break
		}
	}
	switch {
	case enabled && idx < 0:
		c.policy.AllowedApps = append(c.policy.AllowedApps, app)
	case !enabled && idx >= 0:
		c.policy.AllowedApps = append(c.policy.AllowedApps[:idx], c.policy.AllowedApps[idx+1:]...)
	}
	c.saveLocked()
	c.mu.Unlock()

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	c.log.record("POLICY", fmt.Sprintf("App %s %s", app, state), "parent")
}

// AppAllowed reports whether the policy permits an app. Parent mode
// permits everything.
func (c *Control) AppAllowed(app string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.parentMode {
		return true
	}
	for _, a := range c.policy.AllowedApps {
		if strings.EqualFold(a, app) {
			return true
		}
	}
	return false
}

// CheckSpawn is the gate consulted before a kid app is spawned. It
// returns nil when the launch may proceed.
func (c *Control) CheckSpawn(app string) error {
	c.mu.RLock()
	locked := c.locked
	parentMode := c.parentMode
	c.mu.RUnlock()

	if parentMode {
		return nil
	}
	if locked {
		return ErrLocked
	}
	if c.Bedtime() {
		return ErrBedtime
	}
	if c.TimeLimitReached() {
		return ErrTimeLimit
	}
	if !c.AppAllowed(app) {
		c.log.record("SECURITY", fmt.Sprintf("Blocked launch of disabled app %s", app), "kid")
		return fmt.Errorf("%w: %s", ErrAppDisabled, app)
	}
	return nil
}

// Bedtime reports whether the bedtime window is active. Windows that
// span midnight (20:00 to 07:00) are handled.
func (c *Control) Bedtime() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.policy.BedtimeEnabled || c.parentMode {
		return false
	}

	now := c.now()
	cur := now.Hour()*60 + now.Minute()
	start, err1 := parseClock(c.policy.BedtimeStart)
	end, err2 := parseClock(c.policy.BedtimeEnd)
	if err1 != nil || err2 != nil {
		return false
	}

	if start > end {
		return cur >= start || cur < end
	}
	return cur >= start && cur < end
}

// TimeLimitReached reports whether today's budget is spent.
func (c *Control) TimeLimitReached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.parentMode {
		return false
	}
	return c.usageMinutes >= float64(c.policy.DailyLimitMinutes)
}

// RemainingMinutes returns what is left of today's budget.
func (c *Control) RemainingMinutes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rem := float64(c.policy.DailyLimitMinutes) - c.usageMinutes
	if rem < 0 {
		return 0
	}
	return int(rem)
}

// RecordUsage adds kid screen time. Parent mode and locked time do
// not count. Returns true when recording tripped a lock.
func (c *Control) RecordUsage(minutes float64) bool {
	c.mu.Lock()
	if c.parentMode || c.locked {
		c.mu.Unlock()
		return false
	}
	c.usageMinutes += minutes
	c.saveLocked()
	c.mu.Unlock()

	return c.CheckAndLock()
}

// CheckAndLock locks the system when bedtime or the time limit says
// so. Returns true if a lock fired.
func (c *Control) CheckAndLock() bool {
	if c.ParentMode() {
		return false
	}
	if c.Bedtime() {
		c.lock("Bedtime")
		return true
	}
	if c.TimeLimitReached() {
		c.lock("Daily time limit reached")
		return true
	}
	return false
}

// ForceLock locks immediately without a policy check.
func (c *Control) ForceLock(reason string) {
	if reason == "" {
		reason = "Locked by parent"
	}
	c.lock(reason)
}

// Unlock clears the lock after a password check.
func (c *Control) Unlock(password string) error {
	if !c.CheckPassword(password) {
		return ErrBadPassword
	}

	c.mu.Lock()
	wasLocked := c.locked
	c.locked = false
	c.lockReason = ""
	callbacks := append([]func(){}, c.onUnlock...)
	c.mu.Unlock()

	if wasLocked {
		c.log.record("UNLOCK", "System unlocked by parent", "parent")
		for _, cb := range callbacks {
			cb()
		}
	}
	return nil
}

// Locked reports the lock state and reason.
func (c *Control) Locked() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked, c.lockReason
}

// OnLock registers a callback fired once per lock transition. The
// launcher uses this to terminate running kid apps.
func (c *Control) OnLock(cb func(reason string)) {
	c.mu.Lock()
	c.onLock = append(c.onLock, cb)
	c.mu.Unlock()
}

// OnUnlock registers a callback fired when the parent unlocks.
func (c *Control) OnUnlock(cb func()) {
	c.mu.Lock()
	c.onUnlock = append(c.onUnlock, cb)
	c.mu.Unlock()
}

// Status returns the parent-panel snapshot.
func (c *Control) Status() Status {
	bedtime := c.Bedtime()

	c.mu.RLock()
	defer c.mu.RUnlock()
	rem := float64(c.policy.DailyLimitMinutes) - c.usageMinutes
	if rem < 0 {
		rem = 0
	}
	return Status{
		ParentMode:       c.parentMode,
		Locked:           c.locked,
		LockReason:       c.lockReason,
		Bedtime:          bedtime,
		UsageMinutes:     int(c.usageMinutes),
		RemainingMinutes: int(rem),
		DailyLimit:       c.policy.DailyLimitMinutes,
		PasswordSet:      len(c.passwordHash) > 0,
	}
}

// Activity returns the most recent activity entries, newest first.
func (c *Control) Activity(limit int) []ActivityEntry {
	return c.log.recent(limit)
}

// ClearActivity wipes the activity log.
func (c *Control) ClearActivity() {
	c.log.clear()
}

// RecordActivity adds an entry on behalf of a collaborator.
func (c *Control) RecordActivity(eventType, details, user string) {
	c.log.record(eventType, details, user)
}

func (c *Control) lock(reason string) {
	c.mu.Lock()
	if c.locked {
		c.mu.Unlock()
		return
	}
	c.locked = true
	c.lockReason = reason
	callbacks := append([]func(string){}, c.onLock...)
	c.mu.Unlock()

	c.log.record("LOCK", reason, "system")
	c.logger.Info("System locked", zap.String("reason", reason))
	for _, cb := range callbacks {
		cb(reason)
	}
}

func (c *Control) saveLocked() {
	s := settings{
		PasswordHash: string(c.passwordHash),
		Policy:       c.policy,
		UsageMinutes: c.usageMinutes,
		LastSaveDate: c.now().Format("2006-01-02"),
	}
	raw, err := sonic.MarshalIndent(s, "", "  ")
	if err != nil {
		c.logger.Error("Encode parental settings failed", zap.Error(err))
		return
	}
	if err := c.vfs.Write("parent", settingsPath, raw); err != nil {
		c.logger.Error("Persist parental settings failed", zap.Error(err))
	}
}

func (c *Control) load() {
	raw, err := c.vfs.Read("parent", settingsPath)
	if err != nil {
		return
	}
	var s settings
	if err := sonic.Unmarshal(raw, &s); err != nil {
		c.logger.Warn("Corrupt parental settings, using defaults", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwordHash = []byte(s.PasswordHash)
	if len(s.Policy.AllowedApps) > 0 || s.Policy.DailyLimitMinutes > 0 {
		c.policy = s.Policy
	}
	// Usage carries over only within the same day.
	if s.LastSaveDate == c.now().Format("2006-01-02") {
		c.usageMinutes = s.UsageMinutes
	}
}

func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock value %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock value %q", v)
	}
	return h*60 + m, nil
}
