package crashdetect

import (
	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

// callKind distinguishes the two dispatch boundaries a record can mark.
// The set is closed: every record is created through newNativeCall or
// newPublicCall.
type callKind int

const (
	nativeCall callKind = iota
	publicCall
)

// npCall records one native or public dispatch in flight: which instance
// it runs on, the target function index, and the caller's frame and
// instruction pointers captured at dispatch time. The caller registers
// are what the backtrace composer rewinds to when it crosses the
// boundary this record marks.
type npCall struct {
	kind  callKind
	am    *amx.AMX
	index int
	frm   amx.Cell
	cip   amx.Cell
}

func newNativeCall(am *amx.AMX, index int) *npCall {
	return &npCall{kind: nativeCall, am: am, index: index, frm: am.FRM, cip: am.CIP}
}

func newPublicCall(am *amx.AMX, index int) *npCall {
	return &npCall{kind: publicCall, am: am, index: index, frm: am.FRM, cip: am.CIP}
}

// callStack is the LIFO of in-flight dispatches across every attached
// instance. Its top-to-bottom order is exactly the live call nesting.
// The host dispatches script calls on a single control thread, so there
// is no locking here.
type callStack struct {
	records []*npCall
}

func (s *callStack) push(call *npCall) {
	s.records = append(s.records, call)
}

func (s *callStack) pop() *npCall {
	if len(s.records) == 0 {
		return nil
	}
	call := s.records[len(s.records)-1]
	s.records = s.records[:len(s.records)-1]
	return call
}

// top returns the innermost in-flight dispatch, or nil when script code
// is not running.
func (s *callStack) top() *npCall {
	if len(s.records) == 0 {
		return nil
	}
	return s.records[len(s.records)-1]
}

func (s *callStack) depth() int {
	return len(s.records)
}
