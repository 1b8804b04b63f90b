package amx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/internal/testamx"
)

func gamemodeParams() testamx.Params {
	return testamx.Params{
		Publics: []testamx.Public{
			{Name: "OnGameModeInit", Address: 32},
			{Name: "OnPlayerConnect", Address: 96},
		},
		Natives:     []string{"print", "SetGameModeText"},
		CodeCells:   make([]amx.Cell, 64),
		DataCells:   []amx.Cell{10, 20, 30, 40},
		MainAddress: 8,
	}
}

func TestNewRegisters(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())
	hdr := am.Header()

	require.Equal(t, amx.Cell(hdr.Hea-hdr.Dat), am.HLW)
	require.Equal(t, am.HLW, am.HEA)
	require.Equal(t, amx.Cell(hdr.Stp-hdr.Dat-amx.CellSize), am.STP)
	require.Equal(t, am.STP, am.STK)
	require.Equal(t, amx.Cell(0), am.FRM)
	require.Equal(t, amx.Cell(0), am.CIP)
}

func TestPublics(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	require.Equal(t, 2, am.NumPublics())

	index, err := am.FindPublic("OnPlayerConnect")
	require.NoError(t, err)
	require.Equal(t, 1, index)

	name, err := am.PublicName(index)
	require.NoError(t, err)
	require.Equal(t, "OnPlayerConnect", name)

	addr, err := am.PublicAddress(index)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(96), addr)

	_, err = am.FindPublic("OnPlayerDeath")
	require.ErrorIs(t, err, amx.ErrNotFound)

	_, err = am.PublicName(5)
	require.ErrorIs(t, err, amx.ErrIndex)
}

func TestExecMainEntry(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	name, err := am.PublicName(amx.ExecMain)
	require.NoError(t, err)
	require.Equal(t, "main", name)

	addr, err := am.PublicAddress(amx.ExecMain)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(8), addr)
}

func TestNatives(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	require.Equal(t, 2, am.NumNatives())
	for _, n := range am.Natives() {
		require.Zero(t, n.Addr)
	}

	index, err := am.FindNative("SetGameModeText")
	require.NoError(t, err)
	require.Equal(t, 1, index)

	name, err := am.NativeName(index)
	require.NoError(t, err)
	require.Equal(t, "SetGameModeText", name)

	_, err = am.FindNative("CreateVehicle")
	require.ErrorIs(t, err, amx.ErrNotFound)
}

func TestRegisterNatives(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	noop := func(am *amx.AMX, params []amx.Cell) (amx.Cell, error) {
		return 1, nil
	}

	err := am.RegisterNatives(map[string]amx.NativeFunc{"print": noop})
	require.ErrorIs(t, err, amx.ErrNotFound)

	index, err := am.FindNative("print")
	require.NoError(t, err)
	require.NotZero(t, am.NativeAddr(index))

	err = am.RegisterNatives(map[string]amx.NativeFunc{
		"print":           noop,
		"SetGameModeText": noop,
	})
	require.NoError(t, err)
	for _, n := range am.Natives() {
		require.NotZero(t, n.Addr)
	}
}

func TestCallbackDispatch(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	var gotParams []amx.Cell
	err := am.RegisterNatives(map[string]amx.NativeFunc{
		"print": func(am *amx.AMX, params []amx.Cell) (amx.Cell, error) {
			gotParams = params
			return 7, nil
		},
		"SetGameModeText": func(am *amx.AMX, params []amx.Cell) (amx.Cell, error) {
			return 0, nil
		},
	})
	require.NoError(t, err)

	index, err := am.FindNative("print")
	require.NoError(t, err)

	ret, err := am.Callback(index, []amx.Cell{4, 123})
	require.NoError(t, err)
	require.Equal(t, amx.Cell(7), ret)
	require.Equal(t, []amx.Cell{4, 123}, gotParams)

	_, err = am.Callback(99, nil)
	require.ErrorIs(t, err, amx.ErrNotFound)
}

func TestCallbackUnregistered(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())
	_, err := am.Callback(0, []amx.Cell{0})
	require.ErrorIs(t, err, amx.ErrNotFound)
}

func TestGetSetCell(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	v, err := am.GetCell(4)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(20), v)

	require.NoError(t, am.SetCell(4, 99))
	v, err = am.GetCell(4)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(99), v)

	_, err = am.GetCell(-4)
	require.ErrorIs(t, err, amx.ErrMemAccess)

	hdr := am.Header()
	_, err = am.GetCell(amx.Cell(hdr.Stp - hdr.Dat))
	require.ErrorIs(t, err, amx.ErrMemAccess)
}

func TestCodeCell(t *testing.T) {
	params := gamemodeParams()
	params.CodeCells = []amx.Cell{0x78, 0x30, 0x89}
	am := testamx.MustLoad(params)

	v, err := am.CodeCell(4)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(0x30), v)

	require.Equal(t, amx.Cell(12), am.CodeSize())

	_, err = am.CodeCell(12)
	require.ErrorIs(t, err, amx.ErrMemAccess)
	_, err = am.CodeCell(-4)
	require.ErrorIs(t, err, amx.ErrMemAccess)
}

func TestStack(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	require.NoError(t, am.Push(11))
	require.NoError(t, am.Push(22))

	v, err := am.Pop()
	require.NoError(t, err)
	require.Equal(t, amx.Cell(22), v)
	v, err = am.Pop()
	require.NoError(t, err)
	require.Equal(t, amx.Cell(11), v)

	_, err = am.Pop()
	require.ErrorIs(t, err, amx.ErrStackLow)
}

func TestStackCollision(t *testing.T) {
	params := gamemodeParams()
	params.StackHeapCells = 4
	am := testamx.MustLoad(params)

	require.NoError(t, am.Push(1))
	require.NoError(t, am.Push(2))
	require.NoError(t, am.Push(3))
	require.ErrorIs(t, am.Push(4), amx.ErrStackErr)
}

func TestHeap(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	first, err := am.Allot(4)
	require.NoError(t, err)
	require.Equal(t, am.HLW, first)
	require.Equal(t, first+16, am.HEA)

	second, err := am.Allot(2)
	require.NoError(t, err)
	require.Equal(t, first+16, second)

	am.Release(second)
	require.Equal(t, second, am.HEA)

	// Releasing at or above the heap top changes nothing.
	am.Release(second + 64)
	require.Equal(t, second, am.HEA)

	am.Release(first)
	require.Equal(t, am.HLW, am.HEA)
}

func TestAllotOutOfMemory(t *testing.T) {
	params := gamemodeParams()
	params.StackHeapCells = 4
	am := testamx.MustLoad(params)

	_, err := am.Allot(1000)
	require.ErrorIs(t, err, amx.ErrMemory)
}

func TestReleaseHook(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	var gotAddr amx.Cell
	var gotPC uintptr
	am.ReleaseHook = func(addr amx.Cell, releaser uintptr) {
		gotAddr = addr
		gotPC = releaser
	}

	addr, err := am.Allot(2)
	require.NoError(t, err)

	am.Release(addr)
	require.Equal(t, addr, gotAddr)
	require.NotZero(t, gotPC)
	require.Equal(t, am.HLW, am.HEA)

	// The hook observes releases the heap itself ignores.
	am.Release(am.STP + 100)
	require.Equal(t, am.STP+100, gotAddr)
}

func TestExec(t *testing.T) {
	am := testamx.MustLoad(gamemodeParams())

	_, err := am.Exec(0)
	require.ErrorIs(t, err, amx.ErrInit)

	prev := am.SetExecutor(amx.ExecFunc(func(am *amx.AMX, index int) (amx.Cell, error) {
		return amx.Cell(100 + index), nil
	}))
	require.Nil(t, prev)

	ret, err := am.Exec(1)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(101), ret)

	prev = am.SetExecutor(nil)
	require.NotNil(t, prev)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path, err := testamx.WriteFile(dir, "gamemode.amx", gamemodeParams())
	require.NoError(t, err)

	am, err := amx.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, am.NumPublics())

	_, err = amx.LoadFile(dir + "/missing.amx")
	require.Error(t, err)
}

func TestNewTruncated(t *testing.T) {
	image := testamx.Build(gamemodeParams())
	_, err := amx.New(image[:len(image)-8])
	require.ErrorIs(t, err, amx.ErrFormat)
}

func TestNewCompactRejected(t *testing.T) {
	params := gamemodeParams()
	params.Flags = amx.FlagCompact
	_, err := testamx.Load(params)
	require.ErrorIs(t, err, amx.ErrFormat)
}

func TestNewCopiesImage(t *testing.T) {
	image := testamx.Build(gamemodeParams())
	am, err := amx.New(image)
	require.NoError(t, err)

	for i := range image {
		image[i] = 0xFF
	}
	v, err := am.GetCell(0)
	require.NoError(t, err)
	require.Equal(t, amx.Cell(10), v)
}
