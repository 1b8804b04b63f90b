package amxtrace

import (
	"fmt"
	"strings"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/amxdbg"
)

// maxRawArgs caps how many argument cells are rendered for a frame when
// no symbols describe the real argument list.
const maxRawArgs = 16

// Frame is one machine-level stack frame. FrameAddr is the stack
// address of the frame record; the cell there points at the frame of
// the function this record reports, where its arguments live. RetAddr
// is an address inside the reported function. FuncAddr carries the
// function's entry point when a walk cannot, and is zero otherwise.
type Frame struct {
	FrameAddr amx.Cell
	RetAddr   amx.Cell
	FuncAddr  amx.Cell

	am    *amx.AMX
	table *amxdbg.Table
}

// NewFrame creates a frame bound to an instance and an optional symbol
// table. The table may be nil.
func NewFrame(am *amx.AMX, frameAddr, retAddr, funcAddr amx.Cell, table *amxdbg.Table) Frame {
	return Frame{
		FrameAddr: frameAddr,
		RetAddr:   retAddr,
		FuncAddr:  funcAddr,
		am:        am,
		table:     table,
	}
}

// String renders the frame for a backtrace. With symbols it reads like
//
//	do_crash (index=100) at crashy.pwn:7
//
// and without them the raw form is used:
//
//	0x000000d0 in public OnGameModeInit (0x00000000, 0x00423af8)
func (f Frame) String() string {
	lookup := f.RetAddr
	if lookup == 0 {
		lookup = f.FuncAddr
	}

	if fn, ok := f.table.LookupFunction(lookup); ok {
		s := fmt.Sprintf("%s (%s)", fn.Name, f.namedArgs(fn))
		if file, ok := f.table.LookupFile(lookup); ok {
			if line, ok := f.table.LookupLine(lookup); ok {
				s += fmt.Sprintf(" at %s:%d", file, line)
			}
		}
		return s
	}

	display := f.FuncAddr
	if display == 0 {
		display = f.RetAddr
	}
	return fmt.Sprintf("0x%08x in %s (%s)", uint32(display), f.functionName(), f.rawArgs())
}

// functionName names the function without symbols: publics and main are
// recognizable by their entry points, everything else is ??.
func (f Frame) functionName() string {
	if f.FuncAddr == 0 || f.am == nil {
		return "??"
	}
	if f.FuncAddr == amx.Cell(f.am.Header().Cip) {
		return "main"
	}
	if name, ok := f.am.FindPublicName(f.FuncAddr); ok {
		return "public " + name
	}
	return "??"
}

// argBase returns the frame base of the reported function, where its
// argument count and argument cells live.
func (f Frame) argBase() (amx.Cell, bool) {
	if f.am == nil || f.RetAddr == 0 {
		return 0, false
	}
	base, err := f.am.GetCell(f.FrameAddr)
	if err != nil {
		return 0, false
	}
	return base, true
}

func (f Frame) namedArgs(fn amxdbg.Symbol) string {
	base, ok := f.argBase()
	if !ok {
		return ""
	}
	params := f.table.Params(fn)
	parts := make([]string, 0, len(params))
	for _, p := range params {
		value, err := f.am.GetCell(base + p.Address)
		if err != nil {
			break
		}
		if p.Ident == amxdbg.IdentVariable {
			parts = append(parts, fmt.Sprintf("%s=%d", p.Name, value))
		} else {
			parts = append(parts, fmt.Sprintf("%s=@0x%08x", p.Name, uint32(value)))
		}
	}
	return strings.Join(parts, ", ")
}

func (f Frame) rawArgs() string {
	base, ok := f.argBase()
	if !ok {
		return ""
	}
	argBytes, err := f.am.GetCell(base + 2*amx.CellSize)
	if err != nil {
		return ""
	}
	n := int(argBytes) / amx.CellSize
	if argBytes < 0 || argBytes%amx.CellSize != 0 || n > maxRawArgs {
		return ""
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		value, err := f.am.GetCell(base + amx.Cell(3+i)*amx.CellSize)
		if err != nil {
			break
		}
		parts = append(parts, fmt.Sprintf("0x%08x", uint32(value)))
	}
	return strings.Join(parts, ", ")
}
