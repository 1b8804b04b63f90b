// Package amx models a loaded Pawn abstract machine instance: its memory
// image, registers and function tables. The package does not interpret
// code itself; execution is delegated to an Executor so that plain
// interpreters, JITs and scripted test drivers can all drive the same
// machine state.
package amx

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
)

// Cell is the machine word. Code and data addresses, stack slots and
// script values are all cells.
type Cell int32

// NativeFunc implements a native function in the host. params follows the
// machine convention: params[0] holds the argument byte count and
// params[1:] the arguments themselves.
type NativeFunc func(am *AMX, params []Cell) (Cell, error)

// CallbackFunc dispatches a native call by table index. Executors route
// every SYSREQ through the instance's Callback field, which lets embedders
// interpose on native calls by swapping the field.
type CallbackFunc func(index int, params []Cell) (Cell, error)

// Executor runs code inside an AMX instance. Exec starts the public
// function with the given table index (or ExecMain) and returns its
// return value.
type Executor interface {
	Exec(am *AMX, index int) (Cell, error)
}

// ExecFunc adapts a plain function to the Executor interface.
type ExecFunc func(am *AMX, index int) (Cell, error)

// Exec calls f.
func (f ExecFunc) Exec(am *AMX, index int) (Cell, error) {
	return f(am, index)
}

// ExecMain selects the script's main() entry point when passed to Exec,
// PublicName or PublicAddress.
const ExecMain = -1

// FuncStub is one row of the public function table.
type FuncStub struct {
	Address Cell
	Name    string
}

// Native is one row of the native function table. Addr is the host code
// address of the registered implementation, or 0 while unregistered.
type Native struct {
	Name string
	Addr uintptr

	fn NativeFunc
}

// AMX is a single abstract machine instance. The register fields mirror
// the machine registers and are free for executors to read and write.
// CIP is an offset into the code section; the other address registers are
// offsets into the data section.
type AMX struct {
	FRM Cell // base of the current stack frame
	CIP Cell // current instruction
	STK Cell // top of the stack, grows downward
	HEA Cell // top of the heap, grows upward
	HLW Cell // lower bound of the heap
	STP Cell // upper bound of the stack
	PRI Cell
	ALT Cell

	// SysreqD holds the address an optimizing executor may use for
	// direct native calls instead of going through Callback. Zero
	// disables the shortcut.
	SysreqD Cell

	// Callback dispatches native calls by table index. New installs a
	// default that looks the native up in the table; embedders may wrap
	// or replace it.
	Callback CallbackFunc

	// ReleaseHook, when set, observes every Release before the heap
	// shrinks. It receives the released address and the program counter
	// of the Release caller.
	ReleaseHook func(addr Cell, releaser uintptr)

	hdr     Header
	base    []byte
	publics []FuncStub
	natives []Native
	exec    Executor
}

// New creates an instance from an in-memory image. The image is copied
// into a fresh memory block of Header.Stp bytes, so data may be reused or
// modified by the caller afterwards.
func New(image []byte) (*AMX, error) {
	hdr, err := ParseHeader(image)
	if err != nil {
		return nil, err
	}
	if hdr.Flags&FlagCompact != 0 {
		return nil, fmt.Errorf("compact images are not supported: %w", ErrFormat)
	}
	if int(hdr.Size) > len(image) {
		return nil, fmt.Errorf("image truncated to %d of %d bytes: %w",
			len(image), hdr.Size, ErrFormat)
	}
	base := make([]byte, hdr.Stp)
	copy(base, image[:hdr.Size])
	am := &AMX{
		hdr:  hdr,
		base: base,
	}
	am.HLW = Cell(hdr.Hea - hdr.Dat)
	am.HEA = am.HLW
	am.STP = Cell(hdr.Stp - hdr.Dat - CellSize)
	am.STK = am.STP
	am.Callback = am.defaultCallback
	if am.publics, err = am.readStubs(hdr.Publics, hdr.Natives); err != nil {
		return nil, err
	}
	stubs, err := am.readStubs(hdr.Natives, hdr.Libraries)
	if err != nil {
		return nil, err
	}
	am.natives = make([]Native, len(stubs))
	for i, stub := range stubs {
		am.natives[i] = Native{Name: stub.Name}
	}
	return am, nil
}

// LoadFile reads an image from disk and creates an instance from it.
// Trailing data past Header.Size, such as a debug info chunk, is ignored.
func LoadFile(path string) (*AMX, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	am, err := New(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return am, nil
}

func (am *AMX) readStubs(start, end int32) ([]FuncStub, error) {
	if start < 0 || end < start || int(end) > len(am.base) {
		return nil, fmt.Errorf("function table [%d, %d) is out of range: %w",
			start, end, ErrFormat)
	}
	count := int(end-start) / int(am.hdr.DefSize)
	stubs := make([]FuncStub, 0, count)
	for i := 0; i < count; i++ {
		off := int(start) + i*int(am.hdr.DefSize)
		address := am.cellAt(off)
		name, err := am.stringAt(int(am.cellAt(off + 4)))
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, FuncStub{Address: address, Name: name})
	}
	return stubs, nil
}

// stringAt reads a NUL-terminated byte string from the image.
func (am *AMX) stringAt(off int) (string, error) {
	if off < 0 || off >= len(am.base) {
		return "", fmt.Errorf("name offset %d is out of range: %w", off, ErrFormat)
	}
	end := off
	for end < len(am.base) && am.base[end] != 0 {
		end++
	}
	if end == len(am.base) {
		return "", fmt.Errorf("unterminated name at offset %d: %w", off, ErrFormat)
	}
	return string(am.base[off:end]), nil
}

func (am *AMX) cellAt(off int) Cell {
	return Cell(uint32(am.base[off]) |
		uint32(am.base[off+1])<<8 |
		uint32(am.base[off+2])<<16 |
		uint32(am.base[off+3])<<24)
}

func (am *AMX) setCellAt(off int, v Cell) {
	am.base[off] = byte(v)
	am.base[off+1] = byte(v >> 8)
	am.base[off+2] = byte(v >> 16)
	am.base[off+3] = byte(v >> 24)
}

// Header returns a copy of the image header.
func (am *AMX) Header() Header {
	return am.hdr
}

// GetCell reads the data cell at the given data section offset.
func (am *AMX) GetCell(addr Cell) (Cell, error) {
	off := int(am.hdr.Dat) + int(addr)
	if addr < 0 || off+CellSize > len(am.base) {
		return 0, fmt.Errorf("data address %#x: %w", uint32(addr), ErrMemAccess)
	}
	return am.cellAt(off), nil
}

// SetCell writes the data cell at the given data section offset.
func (am *AMX) SetCell(addr, value Cell) error {
	off := int(am.hdr.Dat) + int(addr)
	if addr < 0 || off+CellSize > len(am.base) {
		return fmt.Errorf("data address %#x: %w", uint32(addr), ErrMemAccess)
	}
	am.setCellAt(off, value)
	return nil
}

// CodeCell reads the code cell at the given code section offset.
func (am *AMX) CodeCell(addr Cell) (Cell, error) {
	off := int(am.hdr.Cod) + int(addr)
	if addr < 0 || off+CellSize > int(am.hdr.Dat) {
		return 0, fmt.Errorf("code address %#x: %w", uint32(addr), ErrMemAccess)
	}
	return am.cellAt(off), nil
}

// CodeSize returns the size of the code section in bytes.
func (am *AMX) CodeSize() Cell {
	return Cell(am.hdr.Dat - am.hdr.Cod)
}

// Push puts a value on top of the stack.
func (am *AMX) Push(value Cell) error {
	if am.STK-CellSize < am.HEA {
		return fmt.Errorf("push with STK=%#x HEA=%#x: %w",
			uint32(am.STK), uint32(am.HEA), ErrStackErr)
	}
	am.STK -= CellSize
	return am.SetCell(am.STK, value)
}

// Pop removes and returns the value on top of the stack.
func (am *AMX) Pop() (Cell, error) {
	if am.STK >= am.STP {
		return 0, fmt.Errorf("pop on empty stack: %w", ErrStackLow)
	}
	value, err := am.GetCell(am.STK)
	if err != nil {
		return 0, err
	}
	am.STK += CellSize
	return value, nil
}

// Allot reserves the given number of cells on the heap and returns the
// data section address of the block.
func (am *AMX) Allot(cells int) (Cell, error) {
	need := Cell(cells) * CellSize
	if need < 0 || am.HEA+need > am.STK {
		return 0, fmt.Errorf("allot of %d cells with HEA=%#x STK=%#x: %w",
			cells, uint32(am.HEA), uint32(am.STK), ErrMemory)
	}
	addr := am.HEA
	am.HEA += need
	return addr, nil
}

// Release frees the heap block at addr along with everything allotted
// after it. Addresses at or above the current heap top are ignored.
func (am *AMX) Release(addr Cell) {
	if am.ReleaseHook != nil {
		pc, _, _, _ := runtime.Caller(1)
		am.ReleaseHook(addr, pc)
	}
	if addr < am.HEA {
		am.HEA = addr
	}
}

// NumPublics returns the number of entries in the public function table.
func (am *AMX) NumPublics() int {
	return len(am.publics)
}

// Publics returns a copy of the public function table.
func (am *AMX) Publics() []FuncStub {
	out := make([]FuncStub, len(am.publics))
	copy(out, am.publics)
	return out
}

// FindPublic returns the table index of the public function with the
// given name.
func (am *AMX) FindPublic(name string) (int, error) {
	for i, stub := range am.publics {
		if stub.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("public %q: %w", name, ErrNotFound)
}

// PublicName returns the name of the public function at the given table
// index. ExecMain maps to "main".
func (am *AMX) PublicName(index int) (string, error) {
	if index == ExecMain {
		return "main", nil
	}
	if index < 0 || index >= len(am.publics) {
		return "", fmt.Errorf("public index %d: %w", index, ErrIndex)
	}
	return am.publics[index].Name, nil
}

// PublicAddress returns the code section address of the public function
// at the given table index. ExecMain maps to the header entry point.
func (am *AMX) PublicAddress(index int) (Cell, error) {
	if index == ExecMain {
		return Cell(am.hdr.Cip), nil
	}
	if index < 0 || index >= len(am.publics) {
		return 0, fmt.Errorf("public index %d: %w", index, ErrIndex)
	}
	return am.publics[index].Address, nil
}

// FindPublicName returns the name of the public function whose entry
// point is the given code address.
func (am *AMX) FindPublicName(addr Cell) (string, bool) {
	for _, stub := range am.publics {
		if stub.Address == addr {
			return stub.Name, true
		}
	}
	return "", false
}

// NumNatives returns the number of entries in the native function table.
func (am *AMX) NumNatives() int {
	return len(am.natives)
}

// Natives returns a copy of the native function table.
func (am *AMX) Natives() []Native {
	out := make([]Native, len(am.natives))
	copy(out, am.natives)
	return out
}

// FindNative returns the table index of the native function with the
// given name.
func (am *AMX) FindNative(name string) (int, error) {
	for i, n := range am.natives {
		if n.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("native %q: %w", name, ErrNotFound)
}

// NativeName returns the name of the native function at the given table
// index.
func (am *AMX) NativeName(index int) (string, error) {
	if index < 0 || index >= len(am.natives) {
		return "", fmt.Errorf("native index %d: %w", index, ErrIndex)
	}
	return am.natives[index].Name, nil
}

// NativeAddr returns the host code address of the native function at the
// given table index, or 0 if it has not been registered.
func (am *AMX) NativeAddr(index int) uintptr {
	if index < 0 || index >= len(am.natives) {
		return 0
	}
	return am.natives[index].Addr
}

// RegisterNatives binds host implementations to the native table by name.
// Names with no matching table entry are ignored; the reverse is an
// error: ErrNotFound is returned if any table entry is still unbound
// after the pass, though the bindings that did match are kept either way.
func (am *AMX) RegisterNatives(natives map[string]NativeFunc) error {
	for i := range am.natives {
		if fn, ok := natives[am.natives[i].Name]; ok {
			am.natives[i].fn = fn
			am.natives[i].Addr = reflect.ValueOf(fn).Pointer()
		}
	}
	for i := range am.natives {
		if am.natives[i].fn == nil {
			return fmt.Errorf("native %q is not registered: %w",
				am.natives[i].Name, ErrNotFound)
		}
	}
	return nil
}

func (am *AMX) defaultCallback(index int, params []Cell) (Cell, error) {
	if index < 0 || index >= len(am.natives) {
		return 0, fmt.Errorf("native index %d: %w", index, ErrNotFound)
	}
	n := am.natives[index]
	if n.fn == nil {
		return 0, fmt.Errorf("native %q is not registered: %w", n.Name, ErrNotFound)
	}
	return n.fn(am, params)
}

// SetExecutor installs the executor used by Exec and returns the previous
// one, which may be nil.
func (am *AMX) SetExecutor(exec Executor) Executor {
	prev := am.exec
	am.exec = exec
	return prev
}

// Exec runs the public function at the given table index, or main() for
// ExecMain, using the installed executor.
func (am *AMX) Exec(index int) (Cell, error) {
	if am.exec == nil {
		return 0, fmt.Errorf("no executor installed: %w", ErrInit)
	}
	return am.exec.Exec(am, index)
}
