package jar

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, data := range entries {
		e, err := w.Create(name)
		require.NoError(t, err)
		_, err = e.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestOpenReadWriteClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jar")
	writeZip(t, path, map[string][]byte{
		"a/B.class": {0xCA, 0xFE},
		"res.txt":   []byte("hello"),
	})

	j, err := Open(path)
	require.NoError(t, err)

	data, err := j.Bytes("res.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	j.Write("res.txt", []byte("replaced"))
	j.Write("new.txt", []byte("added"))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	data, err = j.Bytes("res.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), data)
	assert.True(t, j.Has("new.txt"))
	assert.True(t, j.Has("a/B.class"))
}

func TestCloseWithoutChangesLeavesFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jar")
	writeZip(t, path, map[string][]byte{"res.txt": []byte("hello")})

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Bytes("res.txt")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDoubleWriteMountFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jar")
	writeZip(t, path, map[string][]byte{"res.txt": []byte("hello")})

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = Open(path)
	assert.ErrorContains(t, err, "already mounted for writing")
}

func TestMountReleasedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jar")
	writeZip(t, path, map[string][]byte{"res.txt": []byte("hello")})

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestCreateEmptyJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jar")

	j, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, r.File)
}

func TestUnpackEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jar")
	writeZip(t, path, map[string][]byte{"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n")})

	data, err := UnpackEntry(path, "META-INF/MANIFEST.MF")
	require.NoError(t, err)
	assert.Equal(t, []byte("Manifest-Version: 1.0\n"), data)

	data, err = UnpackEntry(path, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = UnpackEntry(filepath.Join(t.TempDir(), "missing.jar"), "anything")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestExtractBundledServer(t *testing.T) {
	dir := t.TempDir()
	innerPath := filepath.Join(dir, "inner.jar")
	writeZip(t, innerPath, map[string][]byte{"server.txt": []byte("srv")})
	inner, err := os.ReadFile(innerPath)
	require.NoError(t, err)

	bundle := filepath.Join(dir, "bundle.jar")
	writeZip(t, bundle, map[string][]byte{
		"META-INF/versions.list":          []byte("abc123\t1.19.2\tserver-1.19.2.jar\n"),
		"META-INF/versions/server-1.19.2.jar": inner,
	})

	bundled, err := IsServerBundle(bundle)
	require.NoError(t, err)
	assert.True(t, bundled)

	target := filepath.Join(dir, "extracted.jar")
	require.NoError(t, ExtractBundledServer(bundle, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, inner, got)

	plain := filepath.Join(dir, "plain.jar")
	writeZip(t, plain, map[string][]byte{"a.txt": []byte("x")})
	bundled, err = IsServerBundle(plain)
	require.NoError(t, err)
	assert.False(t, bundled)
}
