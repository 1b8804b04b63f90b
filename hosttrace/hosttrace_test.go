package hosttrace_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laschicaz/samp-plugin-crashdetect/hosttrace"
)

func captureHere() hosttrace.Context {
	return hosttrace.Capture(0)
}

func TestCapture(t *testing.T) {
	ctx := captureHere()
	require.False(t, ctx.Empty())

	frames := ctx.Frames()
	require.NotEmpty(t, frames)

	// Frame zero is the function that called Capture, then its caller.
	require.Contains(t, frames[0].Function, "captureHere")
	require.NotZero(t, frames[0].PC)
	require.NotZero(t, frames[0].Line)
	require.True(t, strings.HasSuffix(frames[0].File, "hosttrace_test.go"))
	require.Contains(t, frames[1].Function, "TestCapture")
}

func TestCaptureSkip(t *testing.T) {
	direct := hosttrace.Capture(0)
	skipped := hosttrace.Capture(1)
	require.False(t, skipped.Empty())
	require.Less(t, len(skipped.Frames()), len(direct.Frames()))
}

func TestEmptyContext(t *testing.T) {
	var ctx hosttrace.Context
	require.True(t, ctx.Empty())
	require.Nil(t, ctx.Frames())
}

func TestFrameString(t *testing.T) {
	frame := hosttrace.Frame{
		PC:       0x458f20,
		Function: "main.run",
		File:     "/srv/host/main.go",
		Line:     42,
	}
	require.Equal(t, "0x00458f20 in main.run () at /srv/host/main.go:42", frame.String())
}

func TestFrameStringUnknown(t *testing.T) {
	frame := hosttrace.Frame{PC: 0x1000}
	require.Equal(t, "0x00001000 in ?? ()", frame.String())
}

func TestCallerPC(t *testing.T) {
	pc := hosttrace.CallerPC(0)
	require.NotZero(t, pc)
}

func TestExecutableResolver(t *testing.T) {
	resolver := hosttrace.NewExecutableResolver()

	path := resolver.ModulePath(hosttrace.CallerPC(0))
	require.NotEmpty(t, path)

	require.Empty(t, resolver.ModulePath(0))
}
