package amxdbg

import (
	"fmt"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

// reader walks a debug chunk with a sticky error, so record decoding can
// read fields unconditionally and check once at the end.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("debug info ends early at offset %d: %w", r.off, amx.ErrFormat)
	}
}

func (r *reader) skip(n int) {
	if r.err != nil {
		return
	}
	if r.off+n > len(r.data) {
		r.fail()
		return
	}
	r.off += n
}

func (r *reader) u8() byte {
	if r.err != nil {
		return 0
	}
	if r.off+1 > len(r.data) {
		r.fail()
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *reader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	if r.off+2 > len(r.data) {
		r.fail()
		return 0
	}
	v := uint16(r.data[r.off]) | uint16(r.data[r.off+1])<<8
	r.off += 2
	return v
}

func (r *reader) i16() int16 {
	return int16(r.u16())
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.off+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := uint32(r.data[r.off]) |
		uint32(r.data[r.off+1])<<8 |
		uint32(r.data[r.off+2])<<16 |
		uint32(r.data[r.off+3])<<24
	r.off += 4
	return v
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	start := r.off
	for r.off < len(r.data) && r.data[r.off] != 0 {
		r.off++
	}
	if r.off == len(r.data) {
		r.fail()
		return ""
	}
	s := string(r.data[start:r.off])
	r.off++
	return s
}
