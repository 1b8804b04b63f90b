package crashdetect

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gofrs/uuid"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/hosttrace"
)

// DefaultKeepAliveIndex is the public index some hosts probe between
// real dispatches as a keep-alive re-entry mechanism. An ErrIndex
// failure at this index is part of that protocol, not a script fault,
// so the monitor treats it as success and reports nothing. Hosts with a
// different probe index set WithKeepAliveIndex; KeepAliveDisabled turns
// the special case off.
const DefaultKeepAliveIndex = -10

// KeepAliveDisabled disables keep-alive reclassification entirely.
const KeepAliveDisabled = math.MinInt32

// handleExecError reports one failed public execution: the error line,
// status-specific detail, the script backtrace, and then the configured
// after-error policy. The keep-alive sentinel is reclassified as success
// before anything is reported.
func (m *Monitor) handleExecError(in *Instance, index int, code amx.Error) {
	if code == amx.ErrIndex && index == m.keepAlive {
		return
	}
	m.errorReported = true

	m.printf("Run time error %d: \"%s\"", code.Code(), code.Error())

	am := in.am
	switch code {
	case amx.ErrBounds:
		if bound, err := am.CodeCell(am.CIP + amx.CellSize); err == nil {
			if index := am.PRI; index < 0 {
				m.printf(" Accessing element at negative index %d", index)
			} else {
				m.printf(" Accessing element at index %d past array upper bound %d",
					index, bound)
			}
		}
	case amx.ErrNotFound:
		for _, native := range am.Natives() {
			if native.Addr == 0 {
				m.printf(" %s", native.Name)
			}
		}
	case amx.ErrStackErr:
		m.printf(" Stack pointer (STK) is 0x%X, heap pointer (HEA) is 0x%X",
			uint32(am.STK), uint32(am.HEA))
	case amx.ErrStackLow:
		m.printf(" Stack pointer (STK) is 0x%X, stack top (STP) is 0x%X",
			uint32(am.STK), uint32(am.STP))
	case amx.ErrHeapLow:
		m.printf(" Heap pointer (HEA) is 0x%X, heap bottom (HLW) is 0x%X",
			uint32(am.HEA), uint32(am.HLW))
	case amx.ErrInvInstr:
		if opcode, err := am.CodeCell(am.CIP); err == nil {
			m.printf(" Unknown opcode 0x%x at address 0x%08X",
				uint32(opcode), uint32(am.CIP))
		}
	}

	switch code {
	case amx.ErrNotFound, amx.ErrIndex, amx.ErrCallback, amx.ErrInit:
		// An uninformative backtrace is worse than none: these statuses
		// fail before or outside any script frame.
	default:
		m.printAMXBacktrace()
	}

	m.runOnError()
	m.dieOrContinue()
}

// Exception reports a crash of the host process. The context should be
// captured at the recovery site. When a script call is in flight the
// crash is attributed to its instance and the script backtrace is
// reconstructed; either way the host backtrace follows.
func (m *Monitor) Exception(hctx hosttrace.Context) {
	if call := m.calls.top(); call != nil {
		m.printf("Server crashed while executing %s", m.Attach(call.am).name)
		m.printAMXBacktrace()
	} else {
		m.printf("Server crashed due to an unknown error")
	}
	m.printHostBacktrace(hctx)
}

// Interrupt reports an external interrupt, attributed like Exception.
// It does not terminate anything by itself.
func (m *Monitor) Interrupt(hctx hosttrace.Context) {
	if call := m.calls.top(); call != nil {
		m.printf("Server received interrupt signal while executing %s",
			m.Attach(call.am).name)
		m.printAMXBacktrace()
	} else {
		m.printf("Server received interrupt signal")
	}
	m.printHostBacktrace(hctx)
}

// handleReleaseError reports a heap release whose address lies outside
// the instance's valid heap range, attributed to the module owning the
// releasing code.
func (m *Monitor) handleReleaseError(addr amx.Cell, releaser uintptr) {
	module := m.resolver.ModulePath(releaser)
	if module != "" {
		module = filepath.Base(module)
	}
	if module == "" {
		module = "<unknown>"
	}
	m.printf("Bad heap release detected:")
	m.printf(" %s [%08x] is releasing memory at %08x which is out of heap",
		module, releaser, uint32(addr))
	m.printHostBacktrace(hosttrace.Capture(0))
}

// runOnError runs the configured after-error command, if any, with an
// incident identifier in its environment so external tooling can
// correlate collected artifacts with the report.
func (m *Monitor) runOnError() {
	command := m.cfg.RunOnError
	if command == "" {
		return
	}
	env := os.Environ()
	if id, err := uuid.NewV4(); err == nil {
		env = append(env, "CRASHDETECT_INCIDENT="+id.String())
		m.logger.Debug().Str("incident", id.String()).Str("command", command).
			Msg("running error command")
	}
	m.runCmd(command, env)
}

// dieOrContinue applies the configured after-error policy.
func (m *Monitor) dieOrContinue() {
	if m.cfg.DieOnError {
		m.printf("Aborting...")
		m.exit(1)
	}
}

func runShellCommand(command string, env []string) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	_ = cmd.Run()
}
