package parental

import (
	"context"
	"errors"
	"fmt"

	"github.com/minimind-os/minimind/internal/shared/types"
)

// Provider exposes parental control as a collaborator service.
type Provider struct {
	control *Control
}

// NewProvider creates a parental control provider
func NewProvider(control *Control) *Provider {
	return &Provider{control: control}
}

// Control returns the underlying control for direct wiring (spawn
// gate, lock callbacks).
func (p *Provider) Control() *Control {
	return p.control
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:          "parental",
		Name:        "Parental Control Service",
		Description: "Password gating, app permissions, time limits, and activity log",
		Category:    types.CategorySecurity,
		Capabilities: []string{
			"password", "policy", "lock", "activity",
		},
		Tools: []types.Tool{
			{
				ID:          "parental.set_password",
				Name:        "Set Password",
				Description: "Set the parent password",
				Parameters: []types.Parameter{
					{Name: "password", Type: "string", Description: "New password", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "parental.login",
				Name:        "Enter Parent Mode",
				Description: "Switch to parent mode with the password",
				Parameters: []types.Parameter{
					{Name: "password", Type: "string", Description: "Parent password", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "parental.logout",
				Name:        "Exit Parent Mode",
				Description: "Return to kid mode",
				Parameters:  []types.Parameter{},
				Returns:     "boolean",
			},
			{
				ID:          "parental.status",
				Name:        "Status",
				Description: "Current mode, lock state, and time budget",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
			{
				ID:          "parental.policy.get",
				Name:        "Get Policy",
				Description: "Read the active policy",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
			{
				ID:          "parental.policy.update",
				Name:        "Update Policy",
				Description: "Replace policy settings (parent mode only)",
				Parameters: []types.Parameter{
					{Name: "policy", Type: "object", Description: "Policy fields", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "parental.app.toggle",
				Name:        "Toggle App",
				Description: "Enable or disable one app (parent mode only)",
				Parameters: []types.Parameter{
					{Name: "app", Type: "string", Description: "App name", Required: true},
					{Name: "enabled", Type: "boolean", Description: "Allow the app", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "parental.lock",
				Name:        "Lock",
				Description: "Force-lock kid mode (parent mode only)",
				Parameters: []types.Parameter{
					{Name: "reason", Type: "string", Description: "Shown on the lock screen", Required: false},
				},
				Returns: "boolean",
			},
			{
				ID:          "parental.unlock",
				Name:        "Unlock",
				Description: "Clear the lock with the parent password",
				Parameters: []types.Parameter{
					{Name: "password", Type: "string", Description: "Parent password", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "parental.activity.recent",
				Name:        "Recent Activity",
				Description: "Activity log entries, newest first (parent mode only)",
				Parameters: []types.Parameter{
					{Name: "limit", Type: "number", Description: "Max entries (default 50)", Required: false},
				},
				Returns: "array",
			},
			{
				ID:          "parental.activity.clear",
				Name:        "Clear Activity",
				Description: "Wipe the activity log (parent mode only)",
				Parameters:  []types.Parameter{},
				Returns:     "boolean",
			},
		},
	}
}

// Execute runs a parental control tool
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, callCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "parental.set_password":
		return p.setPassword(params)
	case "parental.login":
		return p.login(params)
	case "parental.logout":
		p.control.ExitParentMode()
		return success(map[string]interface{}{"parent_mode": false})
	case "parental.status":
		return p.status()
	case "parental.policy.get":
		return success(map[string]interface{}{"policy": p.control.Policy()})
	case "parental.policy.update":
		return p.updatePolicy(params)
	case "parental.app.toggle":
		return p.toggleApp(params)
	case "parental.lock":
		return p.lock(params)
	case "parental.unlock":
		return p.unlock(params)
	case "parental.activity.recent":
		return p.activity(params)
	case "parental.activity.clear":
		if err := p.requireParent(); err != nil {
			return failure(err.Error())
		}
		p.control.ClearActivity()
		return success(map[string]interface{}{"cleared": true})
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (p *Provider) setPassword(params map[string]interface{}) (*types.Result, error) {
	password := getString(params, "password")
	if password == "" {
		return failure("password required")
	}
	// Changing an existing password needs parent mode.
	if p.control.PasswordSet() && !p.control.ParentMode() {
		return failure("parent mode required")
	}
	if err := p.control.SetPassword(password); err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"password_set": true})
}

func (p *Provider) login(params map[string]interface{}) (*types.Result, error) {
	password := getString(params, "password")
	if err := p.control.EnterParentMode(password); err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"parent_mode": true})
}

func (p *Provider) status() (*types.Result, error) {
	s := p.control.Status()
	return success(map[string]interface{}{
		"parent_mode":       s.ParentMode,
		"locked":            s.Locked,
		"lock_reason":       s.LockReason,
		"bedtime":           s.Bedtime,
		"usage_minutes":     s.UsageMinutes,
		"remaining_minutes": s.RemainingMinutes,
		"daily_limit":       s.DailyLimit,
		"password_set":      s.PasswordSet,
	})
}

func (p *Provider) updatePolicy(params map[string]interface{}) (*types.Result, error) {
	if err := p.requireParent(); err != nil {
		return failure(err.Error())
	}
	raw, ok := params["policy"].(map[string]interface{})
	if !ok {
		return failure("policy required")
	}

	policy := p.control.Policy()
	if v, ok := raw["allowed_apps"].([]interface{}); ok {
		apps := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				apps = append(apps, s)
			}
		}
		policy.AllowedApps = apps
	}
	if v, ok := numberFrom(raw, "daily_limit_minutes"); ok {
		policy.DailyLimitMinutes = v
	}
	if v, ok := numberFrom(raw, "session_limit_minutes"); ok {
		policy.SessionLimitMinutes = v
	}
	if v, ok := raw["bedtime_enabled"].(bool); ok {
		policy.BedtimeEnabled = v
	}
	if v, ok := raw["bedtime_start"].(string); ok {
		policy.BedtimeStart = v
	}
	if v, ok := raw["bedtime_end"].(string); ok {
		policy.BedtimeEnd = v
	}

	p.control.UpdatePolicy(policy)
	return success(map[string]interface{}{"updated": true})
}

func (p *Provider) toggleApp(params map[string]interface{}) (*types.Result, error) {
	if err := p.requireParent(); err != nil {
		return failure(err.Error())
	}
	app := getString(params, "app")
	if app == "" {
		return failure("app required")
	}
	enabled, ok := params["enabled"].(bool)
	if !ok {
		return failure("enabled required")
	}
	p.control.ToggleApp(app, enabled)
	return success(map[string]interface{}{"app": app, "enabled": enabled})
}

func (p *Provider) lock(params map[string]interface{}) (*types.Result, error) {
	if err := p.requireParent(); err != nil {
		return failure(err.Error())
	}
	p.control.ForceLock(getString(params, "reason"))
	locked, reason := p.control.Locked()
	return success(map[string]interface{}{"locked": locked, "reason": reason})
}

func (p *Provider) unlock(params map[string]interface{}) (*types.Result, error) {
	if err := p.control.Unlock(getString(params, "password")); err != nil {
		if errors.Is(err, ErrBadPassword) {
			return failure(ErrBadPassword.Error())
		}
		return failure(err.Error())
	}
	return success(map[string]interface{}{"locked": false})
}

func (p *Provider) activity(params map[string]interface{}) (*types.Result, error) {
	if err := p.requireParent(); err != nil {
		return failure(err.Error())
	}
	limit := 50
	if v, ok := numberFrom(params, "limit"); ok && v > 0 {
		limit = v
	}
	entries := p.control.Activity(limit)
	items := make([]interface{}, len(entries))
	for i, e := range entries {
		items[i] = map[string]interface{}{
			"id":        e.ID,
			"timestamp": e.Timestamp,
			"type":      e.Type,
			"details":   e.Details,
			"user":      e.User,
		}
	}
	return success(map[string]interface{}{"entries": items, "count": len(items)})
}

func (p *Provider) requireParent() error {
	if !p.control.ParentMode() {
		return fmt.Errorf("parent mode required")
	}
	return nil
}

func numberFrom(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func getString(params map[string]interface{}, key string) string {
	if val, ok := params[key].(string); ok {
		return val
	}
	return ""
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
