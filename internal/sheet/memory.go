package sheet

import (
	"context"
	"sync"

	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
)

// MemoryGrid is an in-process grid. It backs the memory backend and the tests
type MemoryGrid struct {
	mu     sync.Mutex
	header []string
	rows   [][]string
}

// NewMemoryGrid creates a grid with the given header and no data rows. A nil header leaves the table blank
func NewMemoryGrid(header []string) *MemoryGrid {
	return &MemoryGrid{header: cloneRow(header)}
}

func (g *MemoryGrid) ReadGrid(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, syncerr.Transient("memory.read", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.header == nil {
		return nil, nil
	}
	out := make([][]string, 0, len(g.rows)+1)
	out = append(out, cloneRow(g.header))
	for _, r := range g.rows {
		out = append(out, cloneRow(r))
	}
	return out, nil
}

func (g *MemoryGrid) AppendRow(ctx context.Context, cells []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, syncerr.Transient("memory.append", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rows = append(g.rows, cloneRow(cells))
	return len(g.rows), nil
}

func (g *MemoryGrid) UpdateRow(ctx context.Context, rowID int, cells []string) error {
	if err := ctx.Err(); err != nil {
		return syncerr.Transient("memory.update", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if rowID < 1 || rowID > len(g.rows) {
		return syncerr.NotFound("memory.update", rowID)
	}
	g.rows[rowID-1] = cloneRow(cells)
	return nil
}

func (g *MemoryGrid) DeleteRow(ctx context.Context, rowID int) error {
	if err := ctx.Err(); err != nil {
		return syncerr.Transient("memory.delete", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if rowID < 1 || rowID > len(g.rows) {
		return syncerr.NotFound("memory.delete", rowID)
	}
	g.rows = append(g.rows[:rowID-1], g.rows[rowID:]...)
	return nil
}

func (g *MemoryGrid) WriteHeader(ctx context.Context, header []string) error {
	if err := ctx.Err(); err != nil {
		return syncerr.Transient("memory.write_header", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.header = cloneRow(header)
	return nil
}

// Len returns the number of data rows
func (g *MemoryGrid) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rows)
}

func cloneRow(r []string) []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r))
	copy(out, r)
	return out
}
