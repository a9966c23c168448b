package memory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
)

// Allocation errors returned to the process manager.
var (
	ErrOutOfMemory  = errors.New("out of memory")
	ErrInvalidSize  = errors.New("invalid allocation size")
	ErrUnknownBlock = errors.New("unknown memory block")
)

// Block is a named allocation carved from the user region.
type Block struct {
	ID          uint64    `json:"block_id"`
	OwnerPID    uint32    `json:"owner_pid"`
	Name        string    `json:"name"`
	SizeKB      int       `json:"size_kb"`
	OffsetKB    int       `json:"offset_kb"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// Usage is a point-in-time view of the address space, always derived
// from the live block list.
type Usage struct {
	TotalKB    int `json:"total_kb"`
	ReservedKB int `json:"reserved_kb"`
	UsedKB     int `json:"used_kb"`
	FreeKB     int `json:"free_kb"`
}

// Manager tracks a fixed-size simulated address space: a reserved
// region at offset 0 that is never allocatable, and a user region
// carved into named blocks with first-fit placement.
type Manager struct {
	mu         sync.Mutex
	totalKB    int
	reservedKB int
	blocks     []*Block // sorted by OffsetKB
	freed      map[uint64]struct{}
	nextID     uint64
	logger     *logging.Logger
}

// NewManager creates a memory manager for the given address space.
func NewManager(totalKB, reservedKB int, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		totalKB:    totalKB,
		reservedKB: reservedKB,
		freed:      make(map[uint64]struct{}),
		nextID:     1,
		logger:     logger,
	}
	m.logger.Info("Memory initialized",
		zap.Int("total_kb", totalKB),
		zap.Int("reserved_kb", reservedKB),
		zap.Int("user_kb", totalKB-reservedKB),
	)
	return m
}

// Allocate carves a block for a process out of the user region using
// first-fit. The same offset is never handed out twice.
func (m *Manager) Allocate(pid uint32, name string, sizeKB int) (uint64, error) {
	if sizeKB <= 0 {
		return 0, ErrInvalidSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.findFirstFit(sizeKB)
	if !ok {
		m.logger.Warn("Allocation failed",
			zap.Uint32("pid", pid),
			zap.Int("size_kb", sizeKB),
			zap.Int("free_kb", m.freeLocked()),
		)
		return 0, ErrOutOfMemory
	}

	block := &Block{
		ID:          m.nextID,
		OwnerPID:    pid,
		Name:        name,
		SizeKB:      sizeKB,
		OffsetKB:    offset,
		AllocatedAt: time.Now(),
	}
	m.nextID++

	m.blocks = append(m.blocks, block)
	sort.Slice(m.blocks, func(i, j int) bool { return m.blocks[i].OffsetKB < m.blocks[j].OffsetKB })

	m.logger.Debug("Allocated block",
		zap.Uint64("block_id", block.ID),
		zap.Uint32("pid", pid),
		zap.Int("size_kb", sizeKB),
		zap.Int("offset_kb", offset),
	)
	return block.ID, nil
}

// Free releases a block. Freeing an already-freed block is a no-op;
// an ID that was never issued returns ErrUnknownBlock.
func (m *Manager) Free(blockID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, b := range m.blocks {
		if b.ID == blockID {
			m.blocks = append(m.blocks[:i], m.blocks[i+1:]...)
			m.freed[blockID] = struct{}{}
			m.logger.Debug("Freed block",
				zap.Uint64("block_id", blockID),
				zap.Uint32("pid", b.OwnerPID),
				zap.Int("size_kb", b.SizeKB),
			)
			return nil
		}
	}

	if _, ok := m.freed[blockID]; ok {
		return nil
	}
	return ErrUnknownBlock
}

// Usage returns the current accounting snapshot.
func (m *Manager) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := 0
	for _, b := range m.blocks {
		used += b.SizeKB
	}
	return Usage{
		TotalKB:    m.totalKB,
		ReservedKB: m.reservedKB,
		UsedKB:     m.reservedKB + used,
		FreeKB:     m.totalKB - m.reservedKB - used,
	}
}

// Map returns the block layout ordered by offset, including the
// reserved region as a synthetic block, for the memory viewer.
func (m *Manager) Map() []Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Block, 0, len(m.blocks)+1)
	out = append(out, Block{
		ID:       0,
		OwnerPID: 0,
		Name:     "System Reserved",
		SizeKB:   m.reservedKB,
		OffsetKB: 0,
	})
	for _, b := range m.blocks {
		out = append(out, *b)
	}
	return out
}

// ProcessUsage returns the total KB currently allocated to a process.
func (m *Manager) ProcessUsage(pid uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, b := range m.blocks {
		if b.OwnerPID == pid {
			total += b.SizeKB
		}
	}
	return total
}

// findFirstFit locates the lowest offset in the user region with a
// gap of at least sizeKB. Caller holds the lock.
func (m *Manager) findFirstFit(sizeKB int) (int, bool) {
	cursor := m.reservedKB
	for _, b := range m.blocks {
		if b.OffsetKB-cursor >= sizeKB {
			return cursor, true
		}
		cursor = b.OffsetKB + b.SizeKB
	}
	if m.totalKB-cursor >= sizeKB {
		return cursor, true
	}
	return 0, false
}

// freeLocked reports free user-region KB. Caller holds the lock.
func (m *Manager) freeLocked() int {
	used := 0
	for _, b := range m.blocks {
		used += b.SizeKB
	}
	return m.totalKB - m.reservedKB - used
}
