package crashdetect

import (
	"path/filepath"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/amxdbg"
	"github.com/laschicaz/samp-plugin-crashdetect/amxtrace"
	"github.com/laschicaz/samp-plugin-crashdetect/hosttrace"
)

// printAMXBacktrace reconstructs the script-level call chain from the
// dispatch tracker and the topmost instance's stack memory, one numbered
// line per frame, innermost first.
//
// Only records owned by the topmost record's instance are traced: each
// instance's stack is independent memory, so a record from a different
// instance ends the walk. Public records expand into the chain of
// intra-script frames their stack holds; native records are single
// lines. The walk cursor (frm, cip) starts at the live registers and
// rewinds to each record's saved caller registers as the boundary is
// crossed.
func (m *Monitor) printAMXBacktrace() {
	top := m.calls.top()
	if top == nil {
		return
	}

	topAmx := top.am
	frm := topAmx.FRM
	cip := topAmx.CIP
	level := 0

	if cip == 0 {
		return
	}

	m.printf("AMX backtrace:")

	for i := m.calls.depth() - 1; i >= 0 && cip != 0; i-- {
		call := m.calls.records[i]
		if call.am != topAmx {
			break
		}

		switch call.kind {
		case nativeCall:
			addr := call.am.NativeAddr(call.index)
			if addr == 0 {
				break
			}
			from := ""
			if module := m.resolver.ModulePath(addr); module != "" {
				from = " from " + filepath.Base(module)
			}
			name, err := call.am.NativeName(call.index)
			if err == nil {
				m.printf("#%d native %s () [%08x]%s", level, name, addr, from)
				level++
			}

		case publicCall:
			var table *amxdbg.Table
			name := ""
			if in, ok := m.instances[call.am]; ok {
				table = in.table
				name = in.name
			}

			frames := m.collectFrames(call.am, cip, frm, table)
			ep, _ := call.am.PublicAddress(call.index)
			if len(frames) == 0 {
				frames = append(frames, amxtrace.NewFrame(call.am, frm, 0, ep, table))
			} else if !table.Loaded() {
				bottom := frames[len(frames)-1]
				frames[len(frames)-1] = amxtrace.NewFrame(
					call.am, bottom.FrameAddr, bottom.RetAddr, ep, table)
			}

			for _, frame := range frames {
				from := " from " + name
				if name == "" || table.Loaded() {
					from = ""
				}
				m.printf("#%d %s%s", level, frame, from)
				level++
			}

			frm = call.frm
			cip = call.cip
		}
	}
}

// collectFrames walks the instance's frame-pointer chain with the
// current return address and frame pointer planted on its stack, the way
// the machine itself would have linked them on the next call.
func (m *Monitor) collectFrames(am *amx.AMX, cip, frm amx.Cell, table *amxdbg.Table) []amxtrace.Frame {
	var frames []amxtrace.Frame
	err := withFrameChain(am, cip, frm, func() {
		w := amxtrace.NewWalker(am, am.STK, table)
		for {
			frame, ok := w.Next()
			if !ok {
				break
			}
			frames = append(frames, frame)
		}
	})
	if err != nil {
		m.logger.Debug().Err(err).Msg("frame chain not walkable")
	}
	return frames
}

// withFrameChain runs fn with cip and frm temporarily pushed onto the
// instance's stack. Both cells are popped again on every exit path,
// including a panic inside fn, so the instance's stack and heap
// accounting are unchanged afterwards.
func withFrameChain(am *amx.AMX, cip, frm amx.Cell, fn func()) error {
	if err := am.Push(cip); err != nil {
		return err
	}
	if err := am.Push(frm); err != nil {
		am.Pop()
		return err
	}
	defer func() {
		am.Pop() // frame pointer
		am.Pop() // return address
	}()

	fn()
	return nil
}

// printHostBacktrace renders a captured host context, one numbered line
// per frame, annotated with the owning module path where the resolver
// knows it.
func (m *Monitor) printHostBacktrace(hctx hosttrace.Context) {
	m.printf("Host backtrace:")

	level := 0
	for _, frame := range hctx.Frames() {
		from := ""
		if module := m.resolver.ModulePath(frame.PC); module != "" {
			from = " from " + module
		}
		m.printf("#%d %s%s", level, frame, from)
		level++
	}
}
