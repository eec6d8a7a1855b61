package pipeline

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManiacGamer156/architectury-loom/at"
	"github.com/ManiacGamer156/architectury-loom/classfile"
	"github.com/ManiacGamer156/architectury-loom/jar"
	"github.com/ManiacGamer156/architectury-loom/mapping"
	"github.com/ManiacGamer156/architectury-loom/merge"
	"github.com/ManiacGamer156/architectury-loom/patch"
	"github.com/ManiacGamer156/architectury-loom/remap"
)

type fakeMappings struct {
	toSrg, toOfficial *mapping.Tree
}

func (f *fakeMappings) Mappings(from, to string) (*mapping.Tree, error) {
	if from == "official" {
		return f.toSrg, nil
	}
	return f.toOfficial, nil
}

// countingApplier stands in for the external patcher: the "patched"
// jar is a straight copy of the clean one.
type countingApplier struct {
	calls int
}

var _ patch.Applier = (*countingApplier)(nil)

func (a *countingApplier) Apply(cleanJar, patchSet, outputJar string) error {
	a.calls++
	data, err := os.ReadFile(cleanJar)
	if err != nil {
		return err
	}
	return os.WriteFile(outputJar, data, 0o644)
}

func writeJar(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func buildClass(name string, access uint16) []byte {
	c := classfile.New(name, "java/lang/Object")
	c.Access = access
	return c.Encode()
}

type world struct {
	cfg     Config
	applier *countingApplier
	workDir string
}

// newWorld lays out vanilla jars, patches and forge jars for a full
// pipeline run. Official names "a" and "b" map to srg Foo and Bar.
func newWorld(t *testing.T) *world {
	t.Helper()
	dir := t.TempDir()

	clientJar := filepath.Join(dir, "client.jar")
	writeJar(t, clientJar, map[string][]byte{
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n\n"),
		"a.class":              buildClass("a", 0),
		"assets/icon.png":      []byte("png"),
	})

	serverJar := filepath.Join(dir, "server.jar")
	writeJar(t, serverJar, map[string][]byte{
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n\n"),
		"a.class":              buildClass("a", 0),
		"b.class":              buildClass("b", classfile.AccPublic),
	})

	universalJar := filepath.Join(dir, "forge-universal.jar")
	writeJar(t, universalJar, map[string][]byte{
		"META-INF/MANIFEST.MF":    []byte("Manifest-Version: 1.0\n\n"),
		"forge/ForgeClass.class":  buildClass("forge/ForgeClass", classfile.AccPublic),
		"forge/forge.mixins.json": []byte("{}"),
	})

	userdevJar := filepath.Join(dir, "forge-userdev.jar")
	writeJar(t, userdevJar, map[string][]byte{
		at.ConfigPath:                []byte("public net.minecraft.Foo\n"),
		"inject/forge_logo.png":      []byte("logo"),
		merge.NameMappingServicePath: []byte("x.MappingService\n"),
	})

	clientPatches := filepath.Join(dir, "client.lzma")
	serverPatches := filepath.Join(dir, "server.lzma")
	require.NoError(t, os.WriteFile(clientPatches, []byte("patches"), 0o644))
	require.NoError(t, os.WriteFile(serverPatches, []byte("patches"), 0o644))

	toSrg := mapping.NewTree("official", "srg")
	toSrg.ProcessClassMapping("a", "net/minecraft/Foo")
	toSrg.ProcessClassMapping("b", "net/minecraft/Bar")
	toOfficial := mapping.NewTree("srg", "official")
	toOfficial.ProcessClassMapping("net/minecraft/Foo", "a")
	toOfficial.ProcessClassMapping("net/minecraft/Bar", "b")

	applier := &countingApplier{}
	workDir := filepath.Join(dir, "work")

	return &world{
		applier: applier,
		workDir: workDir,
		cfg: Config{
			WorkDir:           workDir,
			ForgeVersion:      "1.20.1-47.1.0",
			ClientJar:         clientJar,
			ServerJar:         serverJar,
			ClientPatches:     clientPatches,
			ServerPatches:     serverPatches,
			ForgeUniversalJar: universalJar,
			ForgeUserdevJar:   userdevJar,
			Mappings:          &fakeMappings{toSrg: toSrg, toOfficial: toOfficial},
			Applier:           applier,
			AccessTransformer: &at.WideningTransformer{},
			NewRemapper: func(tree *mapping.Tree, opts remap.Options) (remap.JarRemapper, error) {
				return remap.NewRemapper(tree, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
			},
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}
}

func (w *world) run(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(w.cfg)
	require.NoError(t, err)
	require.NoError(t, p.Run())
	return p
}

func TestRun_ProducesAllArtifacts(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)

	for _, f := range p.cacheFiles() {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
	assert.Equal(t, 2, w.applier.calls)
}

func TestRun_MergedJarContents(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)

	out, err := jar.Open(p.MergedJar())
	require.NoError(t, err)
	defer out.Close()

	// Vanilla classes back under official names, forge classes pulled
	// from the universal jar.
	assert.True(t, out.Has("a.class"))
	assert.True(t, out.Has("forge/ForgeClass.class"))
	assert.True(t, out.Has("forge/forge.mixins.json"))

	// Userdev inject files land at the root without their prefix; the
	// name mapping service registration never ships.
	assert.True(t, out.Has("forge_logo.png"))
	assert.False(t, out.Has("inject/forge_logo.png"))
	assert.False(t, out.Has(merge.NameMappingServicePath))
	assert.False(t, out.Has("META-INF/services/cpw.mods.modlauncher.api.INameMappingService"))

	// The access transformer widened Foo, visible on the remapped
	// class.
	data, err := out.Bytes("a.class")
	require.NoError(t, err)
	c, err := classfile.Parse(data)
	require.NoError(t, err)
	assert.NotZero(t, c.Access&classfile.AccPublic)

	manifest, err := out.Bytes("META-INF/MANIFEST.MF")
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "Loom-Patch-Version: 6")
}

// The merge stage takes the client jar as-is, so a server-only class
// does not reach the merged artifact even though the server srg jar
// carries it.
func TestRun_MergeIsClientCopy(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)

	serverSrg, err := jar.Open(p.serverSrgJar)
	require.NoError(t, err)
	defer serverSrg.Close()
	assert.True(t, serverSrg.Has("net/minecraft/Bar.class"))

	out, err := jar.Open(p.MergedJar())
	require.NoError(t, err)
	defer out.Close()
	assert.False(t, out.Has("b.class"))
}

func TestRun_ClientExtraJar(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)

	extra, err := jar.Open(p.ClientExtraJar())
	require.NoError(t, err)
	defer extra.Close()

	assert.True(t, extra.Has("assets/icon.png"))
	for _, name := range extra.Names() {
		assert.False(t, strings.HasSuffix(name, ".class"), name)
		assert.False(t, strings.HasPrefix(name, "META-INF/"), name)
	}
}

func TestRun_SecondRunUsesCache(t *testing.T) {
	w := newWorld(t)
	w.run(t)
	require.Equal(t, 2, w.applier.calls)

	w.run(t)
	assert.Equal(t, 2, w.applier.calls)
}

func TestRun_MissingIntermediateRerunsSuffixOnly(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)
	require.Equal(t, 2, w.applier.calls)

	// Losing the merge output reruns the merge and everything after
	// it, but not the srg or patch stages.
	require.NoError(t, os.Remove(p.mergedPatchedSrgJar))
	w.run(t)
	assert.Equal(t, 2, w.applier.calls)
	assert.FileExists(t, p.mergedPatchedSrgJar)

	// Losing a patch output reruns both patch applications.
	require.NoError(t, os.Remove(p.clientPatchedSrgJar))
	w.run(t)
	assert.Equal(t, 4, w.applier.calls)
}

func TestApplyPatchVersion_NoManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stripped.jar")
	writeJar(t, path, map[string][]byte{
		"a.class": []byte("code"),
	})

	err := applyPatchVersion(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), manifestPath)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jar")
	dst := filepath.Join(dir, "dst.jar")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("stale"), 0o644))

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// A failed copy must not leave a destination behind.
	missing := filepath.Join(dir, "missing.jar")
	gone := filepath.Join(dir, "gone.jar")
	require.Error(t, copyFile(missing, gone))
	assert.NoFileExists(t, gone)

	// No temp files survive either way.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.")
	}
}

func TestRun_MissingTerminalJarInvalidatesEverything(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)
	require.Equal(t, 2, w.applier.calls)

	require.NoError(t, os.Remove(p.MergedJar()))
	w.run(t)
	assert.Equal(t, 4, w.applier.calls)
}

func TestRun_StampMismatchInvalidatesEverything(t *testing.T) {
	w := newWorld(t)
	p := w.run(t)
	require.Equal(t, 2, w.applier.calls)

	// Rewrite the stamp to a previous generation.
	j, err := jar.Open(p.MergedJar())
	require.NoError(t, err)
	manifest, err := j.Bytes(manifestPath)
	require.NoError(t, err)
	j.Write(manifestPath, []byte(strings.ReplaceAll(string(manifest),
		"Loom-Patch-Version: 6", "Loom-Patch-Version: 5")))
	require.NoError(t, j.Close())

	w.run(t)
	assert.Equal(t, 4, w.applier.calls)
}

func TestRun_RefreshDepsForcesRebuild(t *testing.T) {
	w := newWorld(t)
	w.run(t)
	require.Equal(t, 2, w.applier.calls)

	w.cfg.RefreshDeps = true
	w.run(t)
	assert.Equal(t, 4, w.applier.calls)
}

func TestRun_BundledServer(t *testing.T) {
	w := newWorld(t)

	// Repack the server jar as a bundler distribution.
	inner, err := os.ReadFile(w.cfg.ServerJar)
	require.NoError(t, err)
	bundle := filepath.Join(filepath.Dir(w.cfg.ServerJar), "server-bundle.jar")
	writeJar(t, bundle, map[string][]byte{
		"META-INF/versions.list":            []byte("abc123\t1.20.1\t1.20.1/server-1.20.1.jar\n"),
		"META-INF/versions/1.20.1/server-1.20.1.jar": inner,
	})
	w.cfg.ServerJar = bundle

	p := w.run(t)

	serverSrg, err := jar.Open(p.serverSrgJar)
	require.NoError(t, err)
	defer serverSrg.Close()
	assert.True(t, serverSrg.Has("net/minecraft/Bar.class"))
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.ErrorContains(t, err, "work directory")

	w := newWorld(t)
	cfg := w.cfg
	cfg.Mappings = nil
	_, err = NewProvider(cfg)
	assert.ErrorContains(t, err, "mapping provider")
}

func TestEnvironmentSides(t *testing.T) {
	assert.Equal(t, "client", Client.Side())
	assert.Equal(t, "server", Server.Side())
}
