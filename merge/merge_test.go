package merge

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManiacGamer156/architectury-loom/jar"
)

func openJar(t *testing.T, name string, entries map[string][]byte) *jar.Jar {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for entryName, data := range entries {
		w, err := zw.Create(entryName)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	j, err := jar.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestCopyMissing(t *testing.T) {
	source := openJar(t, "source.jar", map[string][]byte{
		"a/Shared.class": []byte("server"),
		"a/Only.class":   []byte("only"),
		"data/pack.json": []byte("{}"),
	})
	target := openJar(t, "target.jar", map[string][]byte{
		"a/Shared.class": []byte("client"),
	})

	copied, err := CopyMissing(source, target, Classes)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	// Existing entries keep their bytes, non-class entries stay out.
	data, err := target.Bytes("a/Shared.class")
	require.NoError(t, err)
	assert.Equal(t, []byte("client"), data)
	assert.True(t, target.Has("a/Only.class"))
	assert.False(t, target.Has("data/pack.json"))

	copied, err = CopyMissing(source, target, Classes)
	require.NoError(t, err)
	assert.Zero(t, copied)
}

func TestCopyOverwrite(t *testing.T) {
	source := openJar(t, "source.jar", map[string][]byte{
		"assets/icon.png": []byte("new"),
		"a/Code.class":    []byte("code"),
	})
	target := openJar(t, "target.jar", map[string][]byte{
		"assets/icon.png": []byte("old"),
	})

	copied, err := CopyOverwrite(source, target, NonClasses)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	data, err := target.Bytes("assets/icon.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
	assert.False(t, target.Has("a/Code.class"))
}

func TestCopyExcludingStripsRootAndSentinel(t *testing.T) {
	source := openJar(t, "userdev.jar", map[string][]byte{
		"inject/pack.mcmeta":     []byte("meta"),
		"inject/data/tags.json":  []byte("tags"),
		NameMappingServicePath:   []byte("service"),
		"patches/something.diff": []byte("diff"),
	})
	target := openJar(t, "target.jar", nil)

	copied, err := CopyExcluding(source, target, []string{"inject"}, Everything)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	assert.True(t, target.Has("pack.mcmeta"))
	assert.True(t, target.Has("data/tags.json"))
	assert.False(t, target.Has("inject/pack.mcmeta"))
	assert.False(t, target.Has("META-INF/services/cpw.mods.modlauncher.api.INameMappingService"))
	assert.False(t, target.Has("patches/something.diff"))
}

func TestCopyExcludingEmptyRootKeepsNames(t *testing.T) {
	source := openJar(t, "source.jar", map[string][]byte{
		"inject/pack.mcmeta": []byte("meta"),
		"top.txt":            []byte("top"),
	})
	target := openJar(t, "target.jar", nil)

	copied, err := CopyExcluding(source, target, []string{""}, Everything)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)
	assert.True(t, target.Has("inject/pack.mcmeta"))
	assert.True(t, target.Has("top.txt"))
}
