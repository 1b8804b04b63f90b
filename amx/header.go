package amx

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// CellSize is the size of a cell in bytes. Only 32-bit cells are
	// supported, which is what every released Pawn toolchain targets.
	CellSize = 4

	// HeaderSize is the size of the file header in bytes.
	HeaderSize = 56

	// Magic identifies a 32-bit cell AMX image.
	Magic = 0xF1E0

	// MinFileVersion is the oldest file format revision we accept.
	MinFileVersion = 6

	// CurFileVersion is the newest file format revision we know about.
	CurFileVersion = 8
)

// Image flags, stored in Header.Flags.
const (
	FlagDebug    = 0x02 // symbolic debug info follows the image
	FlagCompact  = 0x04 // code section is compressed
	FlagByteOpc  = 0x08 // opcodes are bytes rather than cells
	FlagNoChecks = 0x10 // compiled without run-time checks
)

// Header is the fixed-size prefix of an AMX image. All multi-byte fields
// are little-endian. The section fields (Cod, Dat, Hea, Stp and the table
// offsets) are byte offsets from the start of the image.
type Header struct {
	Size        int32  // total image size, excluding stack and heap
	Magic       uint16 // cell size signature
	FileVersion uint8  // file format revision
	AMXVersion  uint8  // oldest abstract machine revision that can run this
	Flags       int16
	DefSize     int16 // size of one record in the public/native tables
	Cod         int32 // start of the code section
	Dat         int32 // start of the data section
	Hea         int32 // initial top of the heap
	Stp         int32 // initial stack top, also the total memory requirement
	Cip         int32 // entry point of main(), relative to Cod
	Publics     int32
	Natives     int32
	Libraries   int32
	PubVars     int32
	Tags        int32
	NameTable   int32
}

// ParseHeader decodes and validates the header at the start of data.
// It does not look past the first HeaderSize bytes.
func ParseHeader(data []byte) (Header, error) {
	var hdr Header
	if len(data) < HeaderSize {
		return hdr, fmt.Errorf("%d byte image is too short for a header: %w",
			len(data), ErrFormat)
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return hdr, fmt.Errorf("failed to decode header: %w", ErrFormat)
	}
	if hdr.Magic != Magic {
		return hdr, fmt.Errorf("bad magic %#x: %w", hdr.Magic, ErrFormat)
	}
	if hdr.FileVersion < MinFileVersion {
		return hdr, fmt.Errorf("file version %d is too old: %w",
			hdr.FileVersion, ErrFormat)
	}
	if hdr.DefSize != 8 {
		return hdr, fmt.Errorf("unsupported table record size %d: %w",
			hdr.DefSize, ErrFormat)
	}
	if hdr.Cod < HeaderSize || hdr.Dat < hdr.Cod || hdr.Hea < hdr.Dat || hdr.Stp < hdr.Hea {
		return hdr, fmt.Errorf("section offsets are out of order: %w", ErrFormat)
	}
	if hdr.Size < hdr.Dat {
		return hdr, fmt.Errorf("image size %d does not cover the code section: %w",
			hdr.Size, ErrFormat)
	}
	return hdr, nil
}
