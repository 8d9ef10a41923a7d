// Package sheettest provides grid doubles for exercising retry and idempotence paths
package sheettest

import (
	"context"
	"errors"
	"sync"

	"github.com/Guizzs26/abx-sheet-sync/internal/sheet"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
)

// Grid operation names used to address faults and counters
const (
	OpRead        = "read"
	OpAppend      = "append"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpWriteHeader = "write_header"
)

// Fault is a one-shot failure consumed by the next call to the targeted operation
type Fault int

const (
	// FailBefore returns a transient error without touching the inner grid
	FailBefore Fault = iota + 1
	// DropResponse applies the call to the inner grid and then reports a transient error,
	// as if the response was lost on the way back
	DropResponse
)

var errInjected = errors.New("injected fault")

// Call records one mutation that reached the inner grid
type Call struct {
	Op    string
	RowID int
	Cells []string
}

// FaultyGrid wraps a grid with scripted failures, call counters and hooks
type FaultyGrid struct {
	inner sheet.Grid

	mu      sync.Mutex
	faults  map[string][]Fault
	calls   map[string]int
	applied []Call
	before  map[string]func(ctx context.Context) error
}

func NewFaultyGrid(inner sheet.Grid) *FaultyGrid {
	return &FaultyGrid{
		inner:  inner,
		faults: make(map[string][]Fault),
		calls:  make(map[string]int),
		before: make(map[string]func(ctx context.Context) error),
	}
}

// Inject queues faults for op, consumed in order by subsequent calls
func (g *FaultyGrid) Inject(op string, faults ...Fault) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[op] = append(g.faults[op], faults...)
}

// Before installs a hook run ahead of every call to op. A non-nil hook error is returned as is.
// Hooks can block on ctx to simulate slow calls or mutate the inner grid to simulate another writer
func (g *FaultyGrid) Before(op string, hook func(ctx context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.before[op] = hook
}

// Calls returns how many times op was invoked, including failed attempts
func (g *FaultyGrid) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Applied returns the mutations that reached the inner grid, in order
func (g *FaultyGrid) Applied() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.applied))
	copy(out, g.applied)
	return out
}

func (g *FaultyGrid) ReadGrid(ctx context.Context) ([][]string, error) {
	fault, err := g.enter(ctx, OpRead)
	if err != nil {
		return nil, err
	}
	if fault == FailBefore {
		return nil, syncerr.Transient("faulty.read", errInjected)
	}
	grid, err := g.inner.ReadGrid(ctx)
	if err == nil && fault == DropResponse {
		return nil, syncerr.Transient("faulty.read", errInjected)
	}
	return grid, err
}

func (g *FaultyGrid) AppendRow(ctx context.Context, cells []string) (int, error) {
	fault, err := g.enter(ctx, OpAppend)
	if err != nil {
		return 0, err
	}
	if fault == FailBefore {
		return 0, syncerr.Transient("faulty.append", errInjected)
	}
	rowID, err := g.inner.AppendRow(ctx, cells)
	if err != nil {
		return 0, err
	}
	g.record(Call{Op: OpAppend, RowID: rowID, Cells: cells})
	if fault == DropResponse {
		return 0, syncerr.Transient("faulty.append", errInjected)
	}
	return rowID, nil
}

func (g *FaultyGrid) UpdateRow(ctx context.Context, rowID int, cells []string) error {
	fault, err := g.enter(ctx, OpUpdate)
	if err != nil {
		return err
	}
	if fault == FailBefore {
		return syncerr.Transient("faulty.update", errInjected)
	}
	if err := g.inner.UpdateRow(ctx, rowID, cells); err != nil {
		return err
	}
	g.record(Call{Op: OpUpdate, RowID: rowID, Cells: cells})
	if fault == DropResponse {
		return syncerr.Transient("faulty.update", errInjected)
	}
	return nil
}

func (g *FaultyGrid) DeleteRow(ctx context.Context, rowID int) error {
	fault, err := g.enter(ctx, OpDelete)
	if err != nil {
		return err
	}
	if fault == FailBefore {
		return syncerr.Transient("faulty.delete", errInjected)
	}
	if err := g.inner.DeleteRow(ctx, rowID); err != nil {
		return err
	}
	g.record(Call{Op: OpDelete, RowID: rowID})
	if fault == DropResponse {
		return syncerr.Transient("faulty.delete", errInjected)
	}
	return nil
}

func (g *FaultyGrid) WriteHeader(ctx context.Context, header []string) error {
	fault, err := g.enter(ctx, OpWriteHeader)
	if err != nil {
		return err
	}
	if fault == FailBefore {
		return syncerr.Transient("faulty.write_header", errInjected)
	}
	if err := g.inner.WriteHeader(ctx, header); err != nil {
		return err
	}
	if fault == DropResponse {
		return syncerr.Transient("faulty.write_header", errInjected)
	}
	return nil
}

// enter counts the call, runs the hook and pops the next fault for op
func (g *FaultyGrid) enter(ctx context.Context, op string) (Fault, error) {
	g.mu.Lock()
	g.calls[op]++
	hook := g.before[op]
	var fault Fault
	if q := g.faults[op]; len(q) > 0 {
		fault = q[0]
		g.faults[op] = q[1:]
	}
	g.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return 0, err
		}
	}
	return fault, nil
}

func (g *FaultyGrid) record(c Call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cells := make([]string, len(c.Cells))
	copy(cells, c.Cells)
	c.Cells = cells
	g.applied = append(g.applied, c)
}
