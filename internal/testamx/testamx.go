// Package testamx builds small AMX images in memory so tests can load
// real machine instances without shipping compiled script binaries.
package testamx

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

// Public declares one entry of the public function table.
type Public struct {
	Name    string
	Address amx.Cell
}

// Params describes the image to build. The zero value produces a valid
// image with one code cell and a shared stack/heap region of 64 cells.
type Params struct {
	Publics   []Public
	Natives   []string // bound later via RegisterNatives, or left at 0
	CodeCells []amx.Cell
	DataCells []amx.Cell

	// StackHeapCells sizes the region shared by the stack and the heap.
	// Zero means 64 cells.
	StackHeapCells int

	// MainAddress becomes the header entry point (the address of main).
	MainAddress amx.Cell

	Flags int16

	// Debug, when set, appends a debug info chunk after the image and
	// raises the debug flag in the header.
	Debug *DebugParams
}

// Build assembles the image bytes for p, including the trailing debug
// chunk when p.Debug is set.
func Build(p Params) []byte {
	codeCells := p.CodeCells
	if len(codeCells) == 0 {
		codeCells = []amx.Cell{0}
	}
	room := p.StackHeapCells
	if room == 0 {
		room = 64
	}

	// Lay the sections out before writing anything: tables first, then
	// the name pool, then code and data.
	publicsOff := int32(amx.HeaderSize)
	nativesOff := publicsOff + int32(8*len(p.Publics))
	tablesEnd := nativesOff + int32(8*len(p.Natives))

	var names bytes.Buffer
	nameOff := func(s string) int32 {
		off := tablesEnd + int32(names.Len())
		names.WriteString(s)
		names.WriteByte(0)
		return off
	}
	publicNameOffs := make([]int32, len(p.Publics))
	for i, pub := range p.Publics {
		publicNameOffs[i] = nameOff(pub.Name)
	}
	nativeNameOffs := make([]int32, len(p.Natives))
	for i, name := range p.Natives {
		nativeNameOffs[i] = nameOff(name)
	}

	cod := align4(tablesEnd + int32(names.Len()))
	dat := cod + int32(amx.CellSize*len(codeCells))
	hea := dat + int32(amx.CellSize*len(p.DataCells))
	stp := hea + int32(amx.CellSize*room)

	flags := p.Flags
	if p.Debug != nil {
		flags |= amx.FlagDebug
	}
	hdr := amx.Header{
		Size:        hea,
		Magic:       amx.Magic,
		FileVersion: amx.CurFileVersion,
		AMXVersion:  amx.CurFileVersion,
		Flags:       flags,
		DefSize:     8,
		Cod:         cod,
		Dat:         dat,
		Hea:         hea,
		Stp:         stp,
		Cip:         int32(p.MainAddress),
		Publics:     publicsOff,
		Natives:     nativesOff,
		Libraries:   tablesEnd,
		PubVars:     tablesEnd,
		Tags:        tablesEnd,
		NameTable:   tablesEnd,
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, hdr)
	for i, pub := range p.Publics {
		binary.Write(&buf, le, pub.Address)
		binary.Write(&buf, le, publicNameOffs[i])
	}
	for i := range p.Natives {
		binary.Write(&buf, le, int32(0))
		binary.Write(&buf, le, nativeNameOffs[i])
	}
	buf.Write(names.Bytes())
	for buf.Len() < int(cod) {
		buf.WriteByte(0)
	}
	for _, c := range codeCells {
		binary.Write(&buf, le, c)
	}
	for _, c := range p.DataCells {
		binary.Write(&buf, le, c)
	}
	if p.Debug != nil {
		buf.Write(buildDebug(p.Debug))
	}
	return buf.Bytes()
}

// Load builds the image and creates a machine instance from it.
func Load(p Params) (*amx.AMX, error) {
	return amx.New(Build(p))
}

// MustLoad is Load for tests that construct known-good images.
func MustLoad(p Params) *amx.AMX {
	am, err := Load(p)
	if err != nil {
		panic(err)
	}
	return am
}

// WriteFile builds the image and writes it to dir/name, returning the
// full path.
func WriteFile(dir, name string, p Params) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(p), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func align4(off int32) int32 {
	return (off + 3) &^ 3
}
