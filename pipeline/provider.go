// Package pipeline drives the patched-jar build: remap the vanilla
// jars to srg names, binary-patch them, merge the sides, apply access
// transformers and remap the result to official names. Every stage
// writes one artifact under the version's work directory, and a stamp
// in the terminal jar's manifest ties the whole cache to the pipeline
// generation that produced it.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManiacGamer156/architectury-loom/at"
	"github.com/ManiacGamer156/architectury-loom/jar"
	"github.com/ManiacGamer156/architectury-loom/mapping"
	"github.com/ManiacGamer156/architectury-loom/merge"
	"github.com/ManiacGamer156/architectury-loom/patch"
	"github.com/ManiacGamer156/architectury-loom/remap"
	"github.com/ManiacGamer156/architectury-loom/rewrite"
)

// Config wires a Provider. All jar paths must exist before Provide
// runs; the work directory is created as needed.
type Config struct {
	WorkDir      string
	ForgeVersion string

	ClientJar string
	ServerJar string // plain server jar or a bundler distribution

	ClientPatches string
	ServerPatches string

	ForgeUniversalJar string
	ForgeUserdevJar   string

	Libraries []string

	// RefreshDeps forces a full rebuild regardless of cache state.
	RefreshDeps bool

	Mappings          mapping.Provider
	Applier           patch.Applier
	AccessTransformer at.Transformer
	NewRemapper       func(tree *mapping.Tree, opts remap.Options) (remap.JarRemapper, error)
	Logger            *slog.Logger
}

// Provider produces the patched, merged, remapped minecraft jar and
// its client-extra companion.
type Provider struct {
	cfg    Config
	logger *slog.Logger
	dir    string
	dirty  bool

	clientSrgJar          string
	serverSrgJar          string
	clientPatchedSrgJar   string
	serverPatchedSrgJar   string
	mergedPatchedSrgJar   string
	mergedPatchedSrgAtJar string
	mergedPatchedJar      string
	clientExtraJar        string
	extractedServerJar    string
}

func NewProvider(cfg Config) (*Provider, error) {
	switch {
	case cfg.WorkDir == "":
		return nil, errors.New("pipeline: work directory not set")
	case cfg.ForgeVersion == "":
		return nil, errors.New("pipeline: forge version not set")
	case cfg.Mappings == nil:
		return nil, errors.New("pipeline: no mapping provider")
	case cfg.Applier == nil:
		return nil, errors.New("pipeline: no patch applier")
	case cfg.AccessTransformer == nil:
		return nil, errors.New("pipeline: no access transformer")
	case cfg.NewRemapper == nil:
		return nil, errors.New("pipeline: no remapper factory")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir := filepath.Join(cfg.WorkDir, "forge", cfg.ForgeVersion)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &Provider{
		cfg:    cfg,
		logger: cfg.Logger,
		dir:    dir,

		clientSrgJar:          filepath.Join(dir, "minecraft-client-srg.jar"),
		serverSrgJar:          filepath.Join(dir, "minecraft-server-srg.jar"),
		clientPatchedSrgJar:   filepath.Join(dir, "client-srg-patched.jar"),
		serverPatchedSrgJar:   filepath.Join(dir, "server-srg-patched.jar"),
		mergedPatchedSrgJar:   filepath.Join(dir, "merged-srg-patched.jar"),
		mergedPatchedSrgAtJar: filepath.Join(dir, "merged-srg-at-patched.jar"),
		mergedPatchedJar:      filepath.Join(dir, "merged-patched.jar"),
		clientExtraJar:        filepath.Join(dir, "forge-client-extra.jar"),
		extractedServerJar:    filepath.Join(dir, "server-extracted.jar"),
	}, nil
}

// MergedJar is the terminal artifact, valid after RemapJar.
func (p *Provider) MergedJar() string { return p.mergedPatchedJar }

// ClientExtraJar holds the client assets stripped out of the merged
// jar, valid after RemapJar.
func (p *Provider) ClientExtraJar() string { return p.clientExtraJar }

func (p *Provider) files(env Environment) envFiles {
	if env == Client {
		return envFiles{srgJar: p.clientSrgJar, patchedSrgJar: p.clientPatchedSrgJar}
	}
	return envFiles{srgJar: p.serverSrgJar, patchedSrgJar: p.serverPatchedSrgJar}
}

func (p *Provider) patches(env Environment) string {
	if env == Client {
		return p.cfg.ClientPatches
	}
	return p.cfg.ServerPatches
}

func (p *Provider) cacheFiles() []string {
	return []string{
		p.clientSrgJar,
		p.serverSrgJar,
		p.clientPatchedSrgJar,
		p.serverPatchedSrgJar,
		p.mergedPatchedSrgJar,
		p.mergedPatchedSrgAtJar,
		p.mergedPatchedJar,
		p.clientExtraJar,
	}
}

// Run executes the whole pipeline.
func (p *Provider) Run() error {
	if err := p.Provide(); err != nil {
		return err
	}
	return p.RemapJar()
}

// Provide runs the srg, patch, merge and access transform stages,
// skipping every stage whose output is already cached. Once one stage
// runs, everything after it runs too.
func (p *Provider) Provide() error {
	if err := p.checkCache(); err != nil {
		return err
	}
	p.dirty = false

	if missingAny(p.clientSrgJar, p.serverSrgJar) {
		start := time.Now()
		if err := p.createSrgJars(); err != nil {
			return err
		}
		p.dirty = true
		p.logger.Info("provided srg jars", "took", time.Since(start))
	}
	if p.dirty || missingAny(p.clientPatchedSrgJar, p.serverPatchedSrgJar) {
		if err := p.patchJars(); err != nil {
			return err
		}
		p.dirty = true
	}
	if p.dirty || missingAny(p.mergedPatchedSrgJar) {
		if err := p.mergeJars(); err != nil {
			return err
		}
		p.dirty = true
	}
	if p.dirty || missingAny(p.mergedPatchedSrgAtJar) {
		if err := p.accessTransform(); err != nil {
			return err
		}
		p.dirty = true
	}
	return nil
}

// RemapJar runs the terminal stage: remap to official names, overlay
// the userdev injections, split out the client extras and stamp the
// result.
func (p *Provider) RemapJar() error {
	if p.dirty || missingAny(p.mergedPatchedJar, p.clientExtraJar) {
		start := time.Now()
		if err := p.remapPatchedJar(); err != nil {
			return err
		}
		if err := p.fillClientExtra(); err != nil {
			return err
		}
		if err := applyPatchVersion(p.mergedPatchedJar); err != nil {
			return err
		}
		p.dirty = true
		p.logger.Info("remapped patched jars", "took", time.Since(start))
	}
	// The extra jar is handed to consumers on every run, rebuilt or
	// not.
	p.logger.Debug("registered client extra jar", "path", p.clientExtraJar)
	return nil
}

// checkCache wipes every artifact when a rebuild is forced or the
// terminal output cannot be trusted: missing, unstamped, or stamped
// by a different patch version. A missing intermediate artifact is
// not a wipe condition; the stage guards rebuild that suffix of the
// pipeline instead.
func (p *Provider) checkCache() error {
	if p.cfg.RefreshDeps {
		p.logger.Info("refresh requested, deleting all patched jars")
		return p.cleanAllCache()
	}
	if missingAny(p.mergedPatchedJar, p.clientExtraJar) || !p.isPatchedJarUpToDate(p.mergedPatchedJar) {
		p.logger.Info("patched jars cache is incomplete or outdated, deleting all patched jars")
		return p.cleanAllCache()
	}
	return nil
}

func (p *Provider) cleanAllCache() error {
	files := append(p.cacheFiles(), p.extractedServerJar)
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// createSrgJars remaps both vanilla jars from official to srg names.
// The bundled server distribution is unpacked first. The two remaps
// run one after the other so their classpath mounts never overlap.
func (p *Provider) createSrgJars() error {
	p.logger.Info("creating srg jars")
	tree, err := p.cfg.Mappings.Mappings("official", "srg")
	if err != nil {
		return err
	}
	remapper, err := p.cfg.NewRemapper(tree, remap.Options{})
	if err != nil {
		return err
	}

	serverJar := p.cfg.ServerJar
	bundled, err := jar.IsServerBundle(serverJar)
	if err != nil {
		return err
	}
	if bundled {
		if err := jar.ExtractBundledServer(serverJar, p.extractedServerJar); err != nil {
			return err
		}
		serverJar = p.extractedServerJar
	}

	if err := remapper.Remap(remap.Request{
		Input:     p.cfg.ClientJar,
		Output:    p.clientSrgJar,
		Classpath: p.cfg.Libraries,
	}); err != nil {
		return fmt.Errorf("creating client srg jar: %w", err)
	}
	if err := remapper.Remap(remap.Request{
		Input:     serverJar,
		Output:    p.serverSrgJar,
		Classpath: p.cfg.Libraries,
	}); err != nil {
		return fmt.Errorf("creating server srg jar: %w", err)
	}
	return nil
}

// patchJars binary-patches both srg jars, then finishes each side:
// classes the patcher left out come back from the clean jar, and the
// placeholder parameter metadata is cleaned up.
func (p *Provider) patchJars() error {
	start := time.Now()
	p.logger.Info("patching jars, this may take a while")

	// The patch tool writes noise through inherited stdout, so both
	// runs happen behind one capture, one side at a time.
	err := patch.CaptureStdout(func() error {
		for _, env := range environments {
			files := p.files(env)
			if err := os.Remove(files.patchedSrgJar); err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := p.cfg.Applier.Apply(files.srgJar, p.patches(env), files.patchedSrgJar); err != nil {
				return fmt.Errorf("patching %s jar: %w", env.Side(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var group errgroup.Group
	for _, env := range environments {
		env := env
		group.Go(func() error { return p.finishPatchedJar(env) })
	}
	if err := group.Wait(); err != nil {
		return err
	}

	p.logger.Info("patched jars", "took", time.Since(start))
	return nil
}

func (p *Provider) finishPatchedJar(env Environment) error {
	files := p.files(env)
	clean, err := jar.Open(files.srgJar)
	if err != nil {
		return err
	}
	defer clean.Close()

	patched, err := jar.Open(files.patchedSrgJar)
	if err != nil {
		return err
	}
	defer patched.Close()

	// The patcher only emits classes it changed; untouched classes
	// come from the clean jar.
	if _, err := merge.CopyMissing(clean, patched, merge.Classes); err != nil {
		return err
	}
	if err := rewrite.Apply(patched, rewrite.StripParameterNames, rewrite.FixParameterAnnotations); err != nil {
		return err
	}
	return patched.Close()
}

// mergeJars takes the client patched jar as the merged jar. This
// assumes the client class set is a superset of the server's, which
// holds for current distributions but is a correctness risk, not an
// invariant: a server-only class would silently go missing here.
func (p *Provider) mergeJars() error {
	p.logger.Info("merging jars")
	return copyFile(p.clientPatchedSrgJar, p.mergedPatchedSrgJar)
}

// accessTransform applies every access transformer config the forge
// jars carry to the merged jar.
func (p *Provider) accessTransform() error {
	start := time.Now()
	p.logger.Info("access transforming minecraft")

	configs, cleanup, err := at.CollectConfigs(
		p.cfg.ForgeUserdevJar, p.cfg.ForgeUniversalJar, p.mergedPatchedSrgJar)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.Remove(p.mergedPatchedSrgAtJar); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := p.cfg.AccessTransformer.Transform(p.mergedPatchedSrgJar, p.mergedPatchedSrgAtJar, configs); err != nil {
		return err
	}
	p.logger.Info("access transformed minecraft", "took", time.Since(start))
	return nil
}

// remapPatchedJar remaps the access transformed jar to official names,
// pulling the forge classes in as patch sources, then overlays the
// userdev inject files.
func (p *Provider) remapPatchedJar() error {
	p.logger.Info("remapping minecraft to official names")
	tree, err := p.cfg.Mappings.Mappings("srg", "official")
	if err != nil {
		return err
	}
	remapper, err := p.cfg.NewRemapper(tree, remap.Options{
		RenameInvalidLocals:    true,
		RebuildSourceFilenames: true,
	})
	if err != nil {
		return err
	}

	if err := os.Remove(p.mergedPatchedJar); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := remapper.Remap(remap.Request{
		Input:        p.mergedPatchedSrgAtJar,
		PatchSources: []string{p.cfg.ForgeUniversalJar, p.cfg.ForgeUserdevJar},
		Output:       p.mergedPatchedJar,
		Classpath:    p.cfg.Libraries,
		// The inject tree is overlaid below with its prefix stripped.
		OmitPrefixes: []string{"inject/"},
	}); err != nil {
		return err
	}
	return p.copyUserdevFiles()
}

func (p *Provider) copyUserdevFiles() error {
	userdev, err := jar.Open(p.cfg.ForgeUserdevJar)
	if err != nil {
		return err
	}
	defer userdev.Close()

	out, err := jar.Open(p.mergedPatchedJar)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := merge.CopyExcluding(userdev, out, []string{"inject"}, merge.Everything); err != nil {
		return err
	}
	return out.Close()
}

// fillClientExtra collects the client's non-class resources into their
// own jar, so dependents that only need assets don't load the merged
// jar.
func (p *Provider) fillClientExtra() error {
	client, err := jar.Open(p.cfg.ClientJar)
	if err != nil {
		return err
	}
	defer client.Close()

	extra, err := jar.Create(p.clientExtraJar)
	if err != nil {
		return err
	}
	defer extra.Close()

	_, err = merge.CopyOverwrite(client, extra, func(name string) bool {
		return !strings.HasSuffix(name, ".class") && !strings.HasPrefix(name, "META-INF/")
	})
	if err != nil {
		return err
	}
	return extra.Close()
}

func missingAny(paths ...string) bool {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return true
		}
	}
	return false
}

// copyFile copies through a temp file so a failed copy never leaves a
// partial artifact behind for the next run's existence check.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
