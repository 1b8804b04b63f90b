// Package hosttrace captures and renders host-process stack traces. It
// is the native-side counterpart of the machine-level walker: when a
// fault or interrupt arrives, the host frames show how control reached
// the script engine.
package hosttrace

import (
	"fmt"
	"os"
	"runtime"
	"sync"
)

// Context is a captured host call stack. The zero value is an empty
// capture.
type Context struct {
	pcs []uintptr
}

// maxFrames bounds a capture. Anything deeper is cut off, which is
// plenty for attributing a fault.
const maxFrames = 64

// Capture records the program counters of the calling goroutine. skip
// levels of callers are dropped in addition to Capture itself, so
// Capture(0) starts at the caller.
func Capture(skip int) Context {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	return Context{pcs: pcs[:n]}
}

// Empty reports whether the capture holds no frames.
func (c Context) Empty() bool {
	return len(c.pcs) == 0
}

// Frame is one resolved host stack frame.
type Frame struct {
	PC       uintptr
	Function string
	File     string
	Line     int
}

// Frames resolves the captured program counters to symbolic frames.
func (c Context) Frames() []Frame {
	if len(c.pcs) == 0 {
		return nil
	}
	var out []Frame
	frames := runtime.CallersFrames(c.pcs)
	for {
		fr, more := frames.Next()
		out = append(out, Frame{
			PC:       fr.PC,
			Function: fr.Function,
			File:     fr.File,
			Line:     fr.Line,
		})
		if !more {
			break
		}
	}
	return out
}

// String renders the frame in the conventional backtrace form, for
// example "0x00458f20 in main.run () at /srv/host/main.go:42".
func (f Frame) String() string {
	name := f.Function
	if name == "" {
		name = "??"
	}
	s := fmt.Sprintf("0x%08x in %s ()", f.PC, name)
	if f.File != "" {
		s += fmt.Sprintf(" at %s:%d", f.File, f.Line)
	}
	return s
}

// CallerPC returns the program counter of a caller, for attributing an
// action to the code that performed it. skip counts callers above the
// caller of CallerPC itself.
func CallerPC(skip int) uintptr {
	pc, _, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return 0
	}
	return pc
}

// ModuleResolver maps a host code address to the path of the loadable
// module that owns it. An empty string means the address could not be
// attributed.
type ModuleResolver interface {
	ModulePath(addr uintptr) string
}

// ExecutableResolver attributes every address to the running executable.
// For a statically linked process every code address it will ever be
// asked about lives in the main binary, so this is exact, not a guess.
type ExecutableResolver struct {
	once sync.Once
	path string
}

// NewExecutableResolver creates a resolver for the current process.
func NewExecutableResolver() *ExecutableResolver {
	return &ExecutableResolver{}
}

// ModulePath returns the path of the running executable, or "" if it
// cannot be determined.
func (r *ExecutableResolver) ModulePath(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	r.once.Do(func() {
		path, err := os.Executable()
		if err != nil {
			return
		}
		r.path = path
	})
	return r.path
}
