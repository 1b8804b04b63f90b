package testamx

import (
	"bytes"
	"encoding/binary"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

// DebugParams describes the debug info chunk appended after the image.
type DebugParams struct {
	Files   []DebugFile
	Lines   []DebugLine
	Symbols []DebugSymbol
}

// DebugFile marks the code address where a source file begins.
type DebugFile struct {
	Address amx.Cell
	Name    string
}

// DebugLine marks the code address where a source line begins. Line is
// stored zero-based, as the compiler writes it.
type DebugLine struct {
	Address amx.Cell
	Line    int32
}

// DebugSymbol is one symbol table record. Ident and VClass hold the raw
// classification bytes from the file format.
type DebugSymbol struct {
	Address   amx.Cell
	Tag       int16
	CodeStart amx.Cell
	CodeEnd   amx.Cell
	Ident     byte
	VClass    byte
	Name      string
	Dims      []DebugSymDim
}

// DebugSymDim is one array dimension attached to a symbol record.
type DebugSymDim struct {
	Tag  int16
	Size uint32
}

type debugHeader struct {
	Size        int32
	Magic       uint16
	FileVersion uint8
	AMXVersion  uint8
	Flags       int16
	Files       int16
	Lines       int32
	Symbols     int16
	Tags        int16
	Automatons  int16
	States      int16
}

func buildDebug(d *DebugParams) []byte {
	le := binary.LittleEndian
	var body bytes.Buffer
	for _, f := range d.Files {
		binary.Write(&body, le, uint32(f.Address))
		body.WriteString(f.Name)
		body.WriteByte(0)
	}
	for _, l := range d.Lines {
		binary.Write(&body, le, uint32(l.Address))
		binary.Write(&body, le, l.Line)
	}
	for _, s := range d.Symbols {
		binary.Write(&body, le, uint32(s.Address))
		binary.Write(&body, le, s.Tag)
		binary.Write(&body, le, uint32(s.CodeStart))
		binary.Write(&body, le, uint32(s.CodeEnd))
		body.WriteByte(s.Ident)
		body.WriteByte(s.VClass)
		binary.Write(&body, le, int16(len(s.Dims)))
		body.WriteString(s.Name)
		body.WriteByte(0)
		for _, dim := range s.Dims {
			binary.Write(&body, le, dim.Tag)
			binary.Write(&body, le, dim.Size)
		}
	}

	hdr := debugHeader{
		Size:        int32(24 + body.Len()),
		Magic:       0xF1EF,
		FileVersion: amx.CurFileVersion,
		AMXVersion:  amx.CurFileVersion,
		Files:       int16(len(d.Files)),
		Lines:       int32(len(d.Lines)),
		Symbols:     int16(len(d.Symbols)),
	}
	var buf bytes.Buffer
	binary.Write(&buf, le, hdr)
	buf.Write(body.Bytes())
	return buf.Bytes()
}
