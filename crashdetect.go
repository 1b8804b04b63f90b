// Package crashdetect diagnoses crashes and run-time errors of Pawn
// scripts running inside an embedded AMX instance. A Monitor tracks
// every native and public dispatch boundary, and when the host reports a
// run-time error, a crash or an interrupt, it reconstructs the full call
// chain (script frames, native frames and host frames) into a readable
// backtrace.
//
// The host attaches each machine instance it loads:
//
//	monitor := crashdetect.New()
//	instance := monitor.Attach(am)
//	ret, err := instance.Exec(amx.ExecMain)
//
// Attach wires the instance's native dispatch and heap release paths to
// the monitor; Exec wraps public execution with call tracking and error
// reporting. Everything the monitor prints goes through one line sink,
// each line prefixed with "[debug] ".
package crashdetect

import (
	"os"
	"path/filepath"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/amxdbg"
	"github.com/laschicaz/samp-plugin-crashdetect/amxpath"
	"github.com/laschicaz/samp-plugin-crashdetect/hosttrace"
	"github.com/laschicaz/samp-plugin-crashdetect/servercfg"
)

// Monitor is the diagnostic engine. It owns the dispatch tracker and the
// per-instance registry; hosts create one Monitor and attach every
// machine instance to it. The zero value is not usable, use New.
//
// The monitor assumes the host dispatches script calls on a single
// control thread. Exception and Interrupt may be called out-of-band,
// but they only read tracked state.
type Monitor struct {
	logf      func(format string, args ...any)
	logger    zerolog.Logger
	cfg       servercfg.Config
	keepAlive int

	searchDirs []string
	resolver   hosttrace.ModuleResolver

	instances map[*amx.AMX]*Instance
	calls     callStack

	// errorReported suppresses the dispatch-boundary report when the
	// same failure was already reported through RuntimeError while the
	// execution was still unwinding.
	errorReported bool

	exit   func(code int)
	runCmd func(command string, env []string)
}

// New creates a monitor. Without options it reports through the global
// zerolog logger, searches "gamemodes" and "filterscripts" (plus
// AMX_PATH) for script files, and continues after errors.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		logf:       log.Printf,
		logger:     zerolog.Nop(),
		keepAlive:  DefaultKeepAliveIndex,
		searchDirs: []string{"gamemodes", "filterscripts"},
		resolver:   hosttrace.NewExecutableResolver(),
		instances:  make(map[*amx.AMX]*Instance),
		exit:       os.Exit,
		runCmd:     runShellCommand,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// printf writes one report line through the configured sink.
func (m *Monitor) printf(format string, args ...any) {
	m.logf("[debug] "+format, args...)
}

// Instance is the monitor's diagnostic context for one attached machine
// instance: the script's identity on disk and its symbol table, when
// either could be resolved.
type Instance struct {
	monitor *Monitor
	am      *amx.AMX
	id      uuid.UUID

	path  string
	name  string
	table *amxdbg.Table

	prevCallback amx.CallbackFunc
}

// Attach registers a machine instance with the monitor and returns its
// diagnostic context, creating it on first call. Creation resolves the
// instance's .amx file through the search path, derives the display name
// from the file name, and loads debug symbols when the image advertises
// them. All of that is best-effort: an unlocatable file degrades to an
// unnamed instance without symbols.
//
// Attach also hooks the instance: native dispatch is routed through the
// monitor (chaining the previously installed callback), heap releases
// are checked against the heap bounds, and the direct-syscall patch
// target is cleared so every native call stays observable.
func (m *Monitor) Attach(am *amx.AMX) *Instance {
	if in, ok := m.instances[am]; ok {
		return in
	}

	in := &Instance{monitor: m, am: am}
	in.id, _ = uuid.NewV4()

	finder := amxpath.NewFinder()
	for _, dir := range m.searchDirs {
		finder.AddSearchPath(dir)
	}
	finder.AddSearchPathList(os.Getenv("AMX_PATH"))

	path, err := finder.FindAMX(am)
	if err != nil {
		m.logger.Debug().Err(err).Str("instance", in.id.String()).
			Msg("script file not located")
	} else {
		in.path = path
		in.name = filepath.Base(path)
	}

	if in.path != "" && amxdbg.IsPresent(am) {
		table, err := amxdbg.LoadFile(in.path)
		if err != nil {
			m.logger.Debug().Err(err).Str("path", in.path).
				Msg("debug info unreadable")
		} else {
			in.table = table
		}
	}

	am.SysreqD = 0
	in.prevCallback = am.Callback
	am.Callback = in.dispatchNative
	am.ReleaseHook = in.observeRelease

	m.instances[am] = in
	m.logger.Debug().Str("instance", in.id.String()).Str("name", in.name).
		Bool("symbols", in.table.Loaded()).Msg("instance attached")
	return in
}

// Detach removes an instance from the monitor and unhooks it, restoring
// the native callback that was installed before Attach.
func (m *Monitor) Detach(am *amx.AMX) {
	in, ok := m.instances[am]
	if !ok {
		return
	}
	am.Callback = in.prevCallback
	am.ReleaseHook = nil
	delete(m.instances, am)
}

// ID returns the instance's attach-time identifier, used to correlate
// debug log events.
func (in *Instance) ID() uuid.UUID { return in.id }

// Name returns the script's display name (the .amx file name), or ""
// when the file could not be located.
func (in *Instance) Name() string { return in.name }

// Path returns the resolved .amx file path, or "" when unknown.
func (in *Instance) Path() string { return in.path }

// Symbols returns the instance's debug symbol table. The result may be
// nil; a nil table answers every query with a miss.
func (in *Instance) Symbols() *amxdbg.Table { return in.table }

// Exec runs a public function under call tracking. A failure that was
// not already reported through the monitor's RuntimeError path is
// reported here; either way the original status is returned to the
// host.
func (in *Instance) Exec(index int) (amx.Cell, error) {
	m := in.monitor
	m.calls.push(newPublicCall(in.am, index))
	defer m.calls.pop()

	ret, err := in.am.Exec(index)
	if err != nil && !m.errorReported {
		m.handleExecError(in, index, amx.CodeOf(err))
	} else {
		m.errorReported = false
	}
	return ret, err
}

// RuntimeError is the host's error callback: it reports a failed public
// execution on behalf of the host's own error delivery, before the
// execution has finished unwinding. The instance is attached on demand.
func (m *Monitor) RuntimeError(am *amx.AMX, index int, err error) {
	m.handleExecError(m.Attach(am), index, amx.CodeOf(err))
}

// dispatchNative wraps native dispatch with call tracking and chains to
// the callback that was installed before Attach.
func (in *Instance) dispatchNative(index int, params []amx.Cell) (amx.Cell, error) {
	m := in.monitor
	m.calls.push(newNativeCall(in.am, index))
	defer m.calls.pop()

	if in.prevCallback == nil {
		return 0, amx.ErrCallback
	}
	return in.prevCallback(index, params)
}

// observeRelease checks a heap release against the instance's valid heap
// range. The release itself proceeds regardless.
func (in *Instance) observeRelease(addr amx.Cell, releaser uintptr) {
	if addr < in.am.HLW || addr >= in.am.STK {
		in.monitor.handleReleaseError(addr, releaser)
	}
}
