package apps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/domain/service"
	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/kernel"
	"github.com/minimind-os/minimind/internal/kernel/process"
	"github.com/minimind-os/minimind/internal/providers/parental"
	"github.com/minimind-os/minimind/internal/shared/types"
)

var (
	ErrUnknownApp  = errors.New("unknown app")
	ErrNoMemory    = errors.New("not enough memory to start app")
	ErrNotRunning  = errors.New("app instance not running")
	ErrAlreadyOpen = errors.New("app is already open")
)

// Instance is one running app.
type Instance struct {
	ID        string    `json:"id"`
	PID       uint32    `json:"pid"`
	AppID     string    `json:"app_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	StartedAt time.Time `json:"started_at"`
}

type running struct {
	info      Instance
	app       App
	unblockAt uint64 // tick to release a simulated input wait, 0 = none
}

// Launcher spawns catalog apps as kernel processes and drives their
// scripted behavior from the tick observer. It consults parental
// control before every kid launch and tears kid apps down when the
// system locks.
type Launcher struct {
	mu        sync.Mutex
	kernel    *kernel.Kernel
	control   *parental.Control
	registry  *service.Registry
	logger    *logging.Logger
	instances map[uint32]*running
}

// NewLauncher wires the launcher into the kernel tick loop and the
// parental lock callback.
func NewLauncher(k *kernel.Kernel, control *parental.Control, registry *service.Registry, logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Launcher{
		kernel:    k,
		control:   control,
		registry:  registry,
		logger:    logger.Component("launcher"),
		instances: make(map[uint32]*running),
	}
	k.OnTick(l.step)
	if control != nil {
		control.OnLock(func(reason string) {
			l.CloseAll(process.ReasonKilled)
		})
	}
	return l
}

// Available lists the catalog with the per-app allowed flag for the
// given user.
func (l *Launcher) Available(user string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(catalog))
	for _, m := range Manifests() {
		allowed := true
		if l.control != nil && user != "parent" {
			allowed = l.control.AppAllowed(m.ID)
		}
		out = append(out, map[string]interface{}{
			"id":        m.ID,
			"name":      m.Name,
			"icon":      m.Icon,
			"priority":  m.Priority,
			"memory_kb": m.MemoryKB,
			"allowed":   allowed,
		})
	}
	return out
}

// Launch starts a catalog app for user. Kid launches pass through the
// parental spawn gate; a launch that fails for memory leaves only a
// TERMINATED PCB behind and returns ErrNoMemory.
func (l *Launcher) Launch(appID, user string) (Instance, error) {
	app, err := NewApp(appID)
	if err != nil {
		return Instance{}, err
	}
	m := app.Manifest()

	l.mu.Lock()
	for _, r := range l.instances {
		if r.info.AppID == appID {
			l.mu.Unlock()
			return Instance{}, fmt.Errorf("%w: %s", ErrAlreadyOpen, appID)
		}
	}
	l.mu.Unlock()

	if l.control != nil && user != "parent" {
		if err := l.control.CheckSpawn(appID); err != nil {
			return Instance{}, err
		}
	}

	pid, err := l.kernel.Spawn(m.Name, m.Priority, m.MemoryKB, m.Icon)
	if err != nil {
		return Instance{}, err
	}
	if pcb, ok := l.kernel.Process(pid); ok && pcb.State == process.StateTerminated {
		l.record("APP", fmt.Sprintf("Launch of %s failed, out of memory", m.Name), user)
		return Instance{}, fmt.Errorf("%w: %s needs %d KB", ErrNoMemory, m.Name, m.MemoryKB)
	}

	info := Instance{
		ID:        "run_" + uuid.NewString(),
		PID:       pid,
		AppID:     appID,
		Name:      m.Name,
		Icon:      m.Icon,
		StartedAt: time.Now(),
	}

	l.mu.Lock()
	l.instances[pid] = &running{info: info, app: app}
	l.mu.Unlock()

	l.record("APP", fmt.Sprintf("Launched %s (pid %d)", m.Name, pid), user)
	l.logger.Info("App launched",
		zap.String("app", appID),
		zap.Uint32("pid", pid),
		zap.String("instance", info.ID),
	)
	return info, nil
}

// Close terminates one instance and delivers its termination
// notification so the app can save.
func (l *Launcher) Close(pid uint32, reason string) error {
	l.mu.Lock()
	r, ok := l.instances[pid]
	if ok {
		delete(l.instances, pid)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: pid %d", ErrNotRunning, pid)
	}

	if err := l.kernel.Terminate(pid, reason); err != nil && !errors.Is(err, process.ErrInvalidTransition) {
		l.logger.Warn("Terminate on close failed", zap.Uint32("pid", pid), zap.Error(err))
	}

	r.app.OnTerminate(l.saveFunc(pid))
	l.record("APP", fmt.Sprintf("Closed %s (pid %d)", r.info.Name, pid), "kid")
	return nil
}

// CloseAll terminates every instance, used by the parental lock.
func (l *Launcher) CloseAll(reason string) {
	l.mu.Lock()
	pids := make([]uint32, 0, len(l.instances))
	for pid := range l.instances {
		pids = append(pids, pid)
	}
	l.mu.Unlock()

	for _, pid := range pids {
		if err := l.Close(pid, reason); err != nil && !errors.Is(err, ErrNotRunning) {
			l.logger.Warn("Close on lock failed", zap.Uint32("pid", pid), zap.Error(err))
		}
	}
}

// Instances lists running apps ordered by pid.
func (l *Launcher) Instances() []Instance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Instance, 0, len(l.instances))
	for _, r := range l.instances {
		out = append(out, r.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// step is the tick observer: release due input waits, then let the
// RUNNING instance do one slice of work.
func (l *Launcher) step(tick uint64) {
	type pending struct {
		pid uint32
		app App
	}

	l.mu.Lock()
	var unblocks []uint32
	var active *pending
	for pid, r := range l.instances {
		if r.unblockAt > 0 && tick >= r.unblockAt {
			r.unblockAt = 0
			unblocks = append(unblocks, pid)
		}
	}
	l.mu.Unlock()

	for _, pid := range unblocks {
		if err := l.kernel.Unblock(pid); err != nil {
			l.logger.Debug("Unblock skipped", zap.Uint32("pid", pid), zap.Error(err))
		}
	}

	pcb, ok := l.runningPCB()
	if !ok {
		return
	}

	l.mu.Lock()
	if r, found := l.instances[pcb.PID]; found {
		active = &pending{pid: pcb.PID, app: r.app}
	}
	l.mu.Unlock()
	if active == nil {
		return
	}

	switch act := active.app.OnTick(tick); act.Kind {
	case ActionYield:
		if err := l.kernel.Yield(active.pid); err != nil {
			l.logger.Debug("Yield skipped", zap.Uint32("pid", active.pid), zap.Error(err))
		}
	case ActionBlock:
		if err := l.kernel.Block(active.pid); err != nil {
			l.logger.Debug("Block skipped", zap.Uint32("pid", active.pid), zap.Error(err))
			return
		}
		wait := act.WaitTicks
		if wait < 1 {
			wait = 1
		}
		l.mu.Lock()
		if r, found := l.instances[active.pid]; found {
			r.unblockAt = tick + uint64(wait)
		}
		l.mu.Unlock()
	case ActionExit:
		if err := l.Close(active.pid, process.ReasonExited); err != nil {
			l.logger.Debug("Exit close skipped", zap.Uint32("pid", active.pid), zap.Error(err))
		}
	}
}

func (l *Launcher) runningPCB() (process.PCB, bool) {
	for _, pcb := range l.kernel.Processes() {
		if pcb.State == process.StateRunning {
			return pcb, true
		}
	}
	return process.PCB{}, false
}

// saveFunc writes through the filesystem service so sandbox
// permissions apply to app saves too.
func (l *Launcher) saveFunc(pid uint32) SaveFunc {
	if l.registry == nil {
		return nil
	}
	return func(path string, data []byte) error {
		res, err := l.registry.Execute(context.Background(), "filesystem.write", map[string]interface{}{
			"path":    path,
			"content": string(data),
		}, &types.Context{User: "kid", PID: &pid})
		if err != nil {
			return err
		}
		if !res.Success {
			if res.Error != nil {
				return errors.New(*res.Error)
			}
			return errors.New("save failed")
		}
		return nil
	}
}

func (l *Launcher) record(eventType, details, user string) {
	if l.control == nil {
		return
	}
	l.control.RecordActivity(eventType, details, user)
}
