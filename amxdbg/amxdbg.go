// Package amxdbg reads the symbolic debug info chunk that the Pawn
// compiler appends after an AMX image when scripts are built with -d2 or
// -d3. The chunk maps code addresses back to source files, lines and
// symbols. Absence of debug info is an expected state: a nil *Table is
// valid and answers every query with a miss.
package amxdbg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

// Magic identifies a debug info chunk.
const Magic = 0xF1EF

// ErrNotPresent is returned by LoadFile when the image carries no debug
// info chunk.
var ErrNotPresent = errors.New("image has no debug info chunk")

// Ident classifies what a symbol record names.
type Ident byte

const (
	IdentVariable  Ident = 1
	IdentReference Ident = 2
	IdentArray     Ident = 3
	IdentRefArray  Ident = 4
	IdentFunction  Ident = 9
)

// VClass is a symbol's storage class.
type VClass byte

const (
	VClassGlobal VClass = 0
	VClassLocal  VClass = 1
	VClassStatic VClass = 2
)

// File marks the code address where a source file's code begins.
type File struct {
	Address amx.Cell
	Name    string
}

// Line marks the code address where a source line's code begins. The
// value is stored zero-based; LookupLine converts to the one-based
// numbering editors use.
type Line struct {
	Address amx.Cell
	Line    int32
}

// SymDim is one array dimension attached to a symbol.
type SymDim struct {
	Tag  int16
	Size uint32
}

// Symbol is one record of the symbol table. For functions, Address is
// the entry point and CodeStart/CodeEnd bound the body. For local
// variables, Address is a frame offset: arguments sit at positive
// offsets and locals at negative ones.
type Symbol struct {
	Address   amx.Cell
	Tag       int16
	CodeStart amx.Cell
	CodeEnd   amx.Cell
	Ident     Ident
	VClass    VClass
	Name      string
	Dims      []SymDim
}

// IsFunction reports whether the symbol names a function.
func (s Symbol) IsFunction() bool {
	return s.Ident == IdentFunction
}

// IsVariable reports whether the symbol names data rather than code.
func (s Symbol) IsVariable() bool {
	switch s.Ident {
	case IdentVariable, IdentReference, IdentArray, IdentRefArray:
		return true
	}
	return false
}

// Table holds the parsed debug info of one image.
type Table struct {
	files   []File
	lines   []Line
	symbols []Symbol
}

// IsPresent reports whether the instance's image advertises a debug info
// chunk. It inspects the header flags only; the chunk itself lives in
// the file, not in machine memory.
func IsPresent(am *amx.AMX) bool {
	return am.Header().Flags&amx.FlagDebug != 0
}

// ReadFrom parses a debug info chunk from a stream.
func ReadFrom(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read debug info: %w", err)
	}
	return Parse(data)
}

// LoadFile reads the image at path and parses the debug info chunk that
// follows it. ErrNotPresent is returned when the file ends at the image
// boundary.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	hdr, err := amx.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if int(hdr.Size) >= len(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotPresent)
	}
	table, err := Parse(data[hdr.Size:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Parse decodes a raw debug info chunk.
func Parse(data []byte) (*Table, error) {
	r := &reader{data: data}

	size := r.i32()
	magic := r.u16()
	r.skip(2) // file and machine version bytes
	r.skip(2) // flags
	numFiles := int(r.i16())
	numLines := int(r.i32())
	numSymbols := int(r.i16())
	if r.err != nil {
		return nil, r.err
	}
	if magic != Magic {
		return nil, fmt.Errorf("bad debug info magic %#x: %w", magic, amx.ErrFormat)
	}
	if int(size) > len(data) {
		return nil, fmt.Errorf("debug info truncated to %d of %d bytes: %w",
			len(data), size, amx.ErrFormat)
	}
	r.skip(6) // tag, automaton and state table counts

	t := &Table{
		files:   make([]File, 0, numFiles),
		lines:   make([]Line, 0, numLines),
		symbols: make([]Symbol, 0, numSymbols),
	}
	for i := 0; i < numFiles; i++ {
		t.files = append(t.files, File{
			Address: amx.Cell(r.u32()),
			Name:    r.cstring(),
		})
	}
	for i := 0; i < numLines; i++ {
		t.lines = append(t.lines, Line{
			Address: amx.Cell(r.u32()),
			Line:    r.i32(),
		})
	}
	for i := 0; i < numSymbols; i++ {
		s := Symbol{
			Address:   amx.Cell(r.u32()),
			Tag:       r.i16(),
			CodeStart: amx.Cell(r.u32()),
			CodeEnd:   amx.Cell(r.u32()),
			Ident:     Ident(r.u8()),
			VClass:    VClass(r.u8()),
		}
		dim := int(r.i16())
		s.Name = r.cstring()
		for d := 0; d < dim; d++ {
			s.Dims = append(s.Dims, SymDim{Tag: r.i16(), Size: r.u32()})
		}
		t.symbols = append(t.symbols, s)
	}
	if r.err != nil {
		return nil, r.err
	}

	// The compiler emits these sorted already; keep the lookup
	// invariant even for hand-built chunks.
	sort.SliceStable(t.files, func(i, j int) bool { return t.files[i].Address < t.files[j].Address })
	sort.SliceStable(t.lines, func(i, j int) bool { return t.lines[i].Address < t.lines[j].Address })
	return t, nil
}

// Loaded reports whether debug info is available. It is the nil check
// every caller would otherwise write.
func (t *Table) Loaded() bool {
	return t != nil
}

// LookupFunction returns the function symbol whose body contains the
// given code address.
func (t *Table) LookupFunction(addr amx.Cell) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	for _, s := range t.symbols {
		if s.IsFunction() && s.CodeStart <= addr && addr < s.CodeEnd {
			return s, true
		}
	}
	return Symbol{}, false
}

// LookupLine returns the one-based source line for the given code
// address: the last line table entry at or before it.
func (t *Table) LookupLine(addr amx.Cell) (int32, bool) {
	if t == nil {
		return 0, false
	}
	found := false
	var line int32
	for _, l := range t.lines {
		if l.Address > addr {
			break
		}
		line = l.Line
		found = true
	}
	if !found {
		return 0, false
	}
	return line + 1, true
}

// LookupFile returns the source file containing the given code address:
// the last file table entry at or before it.
func (t *Table) LookupFile(addr amx.Cell) (string, bool) {
	if t == nil {
		return "", false
	}
	found := false
	var name string
	for _, f := range t.files {
		if f.Address > addr {
			break
		}
		name = f.Name
		found = true
	}
	if !found {
		return "", false
	}
	return name, true
}

// Params returns the argument symbols of a function, ordered by frame
// offset. Arguments are the function's locals at positive offsets; the
// first one sits just above the saved frame header.
func (t *Table) Params(fn Symbol) []Symbol {
	if t == nil || !fn.IsFunction() {
		return nil
	}
	var params []Symbol
	for _, s := range t.symbols {
		if !s.IsVariable() || s.VClass != VClassLocal {
			continue
		}
		if s.Address < 3*amx.CellSize {
			continue
		}
		if s.CodeStart < fn.CodeStart || s.CodeEnd > fn.CodeEnd {
			continue
		}
		params = append(params, s)
	}
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Address < params[j].Address
	})
	return params
}

// Functions returns all function symbols, ordered by entry address.
func (t *Table) Functions() []Symbol {
	if t == nil {
		return nil
	}
	var fns []Symbol
	for _, s := range t.symbols {
		if s.IsFunction() {
			fns = append(fns, s)
		}
	}
	sort.SliceStable(fns, func(i, j int) bool {
		return fns[i].Address < fns[j].Address
	})
	return fns
}

// Files returns a copy of the file table.
func (t *Table) Files() []File {
	if t == nil {
		return nil
	}
	out := make([]File, len(t.files))
	copy(out, t.files)
	return out
}

// Lines returns a copy of the line table.
func (t *Table) Lines() []Line {
	if t == nil {
		return nil
	}
	out := make([]Line, len(t.lines))
	copy(out, t.lines)
	return out
}

// Symbols returns a copy of the symbol table.
func (t *Table) Symbols() []Symbol {
	if t == nil {
		return nil
	}
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}
