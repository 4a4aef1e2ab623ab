package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte("easting,northing,upward,value\n")
	require.NoError(t, m.WriteFile("survey.csv", data, 0o644))

	data[0] = 'X'
	got, err := m.ReadFile("survey.csv")
	require.NoError(t, err)
	assert.Equal(t, "easting,northing,upward,value\n", string(got), "stored data is isolated from the caller")

	got[0] = 'Y'
	again, err := m.ReadFile("./survey.csv")
	require.NoError(t, err)
	assert.Equal(t, byte('e'), again[0], "paths are cleaned and reads return copies")
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("out/grid.csv")
	require.NoError(t, err)
	_, err = io.WriteString(w, "field,easting")
	require.NoError(t, err)

	got, err := m.ReadFile("out/grid.csv")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, w.Close())
	got, err = m.ReadFile("out/grid.csv")
	require.NoError(t, err)
	assert.Equal(t, "field,easting", string(got))
}

func TestMemoryFileSystem_Open(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("a.csv", []byte("1,2,3,4"), 0o644))

	f, err := m.Open("a.csv")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3,4", string(data))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "a.csv", info.Name())
	assert.Equal(t, int64(7), info.Size())
	assert.False(t, info.IsDir())

	_, err = m.Open("missing.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = m.ReadFile("missing.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.MkdirAll("runs/2024/grids", 0o755))

	assert.Equal(t, []string{"runs", "runs/2024", "runs/2024/grids"}, m.Dirs())
	assert.Empty(t, m.Files())
}

func TestCreateAll(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := CreateAll(m, "reports/site-a/grid.png")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"reports", "reports/site-a"}, m.Dirs())
	assert.Equal(t, []string{"reports/site-a/grid.png"}, m.Files())

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "grid.csv")
	w, err = CreateAll(OSFileSystem{}, path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "ok")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := OSFileSystem{}.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
	info, err := os.Stat(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOSFileSystem_OpenAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.csv")
	var fsys FileSystem = OSFileSystem{}

	require.NoError(t, fsys.WriteFile(path, []byte("0,0,0,1\n"), 0o644))
	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "0,0,0,1\n", string(data))
	_, err = fsys.ReadFile(path + ".missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
