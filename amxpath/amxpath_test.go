package amxpath_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/amxpath"
	"github.com/laschicaz/samp-plugin-crashdetect/internal/testamx"
)

func imageParams(publics ...string) testamx.Params {
	var defs []testamx.Public
	for i, name := range publics {
		defs = append(defs, testamx.Public{Name: name, Address: amx.Cell(32 * (i + 1))})
	}
	return testamx.Params{
		Publics:   defs,
		CodeCells: make([]amx.Cell, 16+8*len(publics)),
	}
}

func TestFindAMX(t *testing.T) {
	dir := t.TempDir()
	gamemodes := filepath.Join(dir, "gamemodes")
	require.NoError(t, os.Mkdir(gamemodes, 0o755))

	_, err := testamx.WriteFile(gamemodes, "other.amx", imageParams("OnFilterScriptInit"))
	require.NoError(t, err)
	wantPath, err := testamx.WriteFile(gamemodes, "mode.amx", imageParams("OnGameModeInit", "OnPlayerConnect"))
	require.NoError(t, err)

	am, err := amx.LoadFile(wantPath)
	require.NoError(t, err)

	finder := amxpath.NewFinder()
	finder.AddSearchPath(gamemodes)

	got, err := finder.FindAMX(am)
	require.NoError(t, err)
	require.Equal(t, wantPath, got)
}

func TestFindAMXSearchOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	require.NoError(t, os.Mkdir(first, 0o755))
	require.NoError(t, os.Mkdir(second, 0o755))

	params := imageParams("OnGameModeInit")
	firstPath, err := testamx.WriteFile(first, "mode.amx", params)
	require.NoError(t, err)
	_, err = testamx.WriteFile(second, "mode.amx", params)
	require.NoError(t, err)

	am, err := amx.LoadFile(firstPath)
	require.NoError(t, err)

	finder := amxpath.NewFinder()
	finder.AddSearchPath(second)
	finder.AddSearchPath(first)

	got, err := finder.FindAMX(am)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(second, "mode.amx"), got)
}

func TestFindAMXNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := testamx.WriteFile(dir, "other.amx", imageParams("OnFilterScriptInit"))
	require.NoError(t, err)

	am := testamx.MustLoad(imageParams("OnGameModeInit"))

	finder := amxpath.NewFinder()
	finder.AddSearchPath(dir)

	_, err = finder.FindAMX(am)
	require.ErrorIs(t, err, amxpath.ErrNotFound)
}

func TestFindAMXCollectsErrors(t *testing.T) {
	dir := t.TempDir()
	badFile := filepath.Join(dir, "broken.amx")
	require.NoError(t, os.WriteFile(badFile, make([]byte, 64), 0o644))

	am := testamx.MustLoad(imageParams("OnGameModeInit"))

	finder := amxpath.NewFinder()
	finder.AddSearchPath(filepath.Join(dir, "missing"))
	finder.AddSearchPath(dir)

	_, err := finder.FindAMX(am)
	require.ErrorIs(t, err, amxpath.ErrNotFound)
	require.ErrorIs(t, err, amx.ErrFormat)
}

func TestFindAMXCacheInvalidation(t *testing.T) {
	dir := t.TempDir()
	path, err := testamx.WriteFile(dir, "mode.amx", imageParams("OnGameModeInit"))
	require.NoError(t, err)

	finder := amxpath.NewFinder()
	finder.AddSearchPath(dir)

	am, err := amx.LoadFile(path)
	require.NoError(t, err)

	got, err := finder.FindAMX(am)
	require.NoError(t, err)
	require.Equal(t, path, got)

	// Replace the file with a different image. The forward-dated mtime
	// makes the change visible even on coarse timestamp filesystems.
	replacement := testamx.Build(imageParams("OnPlayerDeath", "OnPlayerSpawn"))
	require.NoError(t, os.WriteFile(path, replacement, 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Second)))

	_, err = finder.FindAMX(am)
	require.ErrorIs(t, err, amxpath.ErrNotFound)

	replaced, err := amx.New(replacement)
	require.NoError(t, err)
	got, err = finder.FindAMX(replaced)
	require.NoError(t, err)
	require.Equal(t, path, got)
}

func TestAddSearchPathList(t *testing.T) {
	finder := amxpath.NewFinder()
	finder.AddSearchPath("gamemodes")
	list := "extra" + string(filepath.ListSeparator) + string(filepath.ListSeparator) + "more"
	finder.AddSearchPathList(list)

	require.Equal(t, []string{"gamemodes", "extra", "more"}, finder.SearchPath())
}
