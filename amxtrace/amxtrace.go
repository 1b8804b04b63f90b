// Package amxtrace walks the frame-pointer chain inside a machine
// instance's stack and renders the frames it finds. The walk covers the
// currently executing public call only: the chain it follows was built
// by that call, and ends at the zero return address the executor plants
// at public entry.
package amxtrace

import (
	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/amxdbg"
)

// maxDepth bounds a single walk. Chains longer than this are almost
// certainly corrupted memory rather than real nesting.
const maxDepth = 100

// Walker enumerates the frames of a frame-pointer chain, starting at a
// stack address and following the chain toward the stack top. It stops
// at the end of the chain or at the first implausible pointer, so it is
// safe to run over a faulted instance.
type Walker struct {
	am     *amx.AMX
	table  *amxdbg.Table
	cursor amx.Cell
	depth  int
	done   bool
}

// NewWalker creates a walker over the given instance starting at
// stackPtr, normally the instance's current stack pointer. The symbol
// table may be nil.
func NewWalker(am *amx.AMX, stackPtr amx.Cell, table *amxdbg.Table) *Walker {
	return &Walker{am: am, table: table, cursor: stackPtr}
}

// Next returns the next frame of the chain. The second return value is
// false once the chain is exhausted.
func (w *Walker) Next() (Frame, bool) {
	if w.done || w.depth >= maxDepth {
		w.done = true
		return Frame{}, false
	}
	if w.cursor%amx.CellSize != 0 {
		w.done = true
		return Frame{}, false
	}
	ret, err := w.am.GetCell(w.cursor + amx.CellSize)
	if err != nil || ret <= 0 || ret >= w.am.CodeSize() {
		w.done = true
		return Frame{}, false
	}
	next, err := w.am.GetCell(w.cursor)
	if err != nil {
		w.done = true
		return Frame{}, false
	}

	frame := NewFrame(w.am, w.cursor, ret, 0, w.table)
	w.depth++

	// Frame addresses must strictly increase toward the stack top;
	// anything else means the chain has run out or is damaged.
	if next <= w.cursor || next > w.am.STP || next%amx.CellSize != 0 {
		w.done = true
	} else {
		w.cursor = next
	}
	return frame, true
}

// Reset restarts the walk from a new stack address.
func (w *Walker) Reset(stackPtr amx.Cell) {
	w.cursor = stackPtr
	w.depth = 0
	w.done = false
}
