// Package remap rewrites jars from one mapping namespace to another.
// Entries keep their archive order; class references are repointed at
// the constant pool level so shared Utf8 constants are never mutated
// in place.
package remap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/emirpasic/gods/sets/linkedhashset"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ManiacGamer156/architectury-loom/classfile"
	"github.com/ManiacGamer156/architectury-loom/jar"
	"github.com/ManiacGamer156/architectury-loom/mapping"
)

// Options tune remapper behavior to match what the patched jars need.
type Options struct {
	// RenameInvalidLocals replaces local variable names that are not
	// valid Java identifiers with a slot-derived name.
	RenameInvalidLocals bool

	// RebuildSourceFilenames regenerates every SourceFile attribute
	// from the remapped class name.
	RebuildSourceFilenames bool

	// LogUnknownInvokeDynamic logs invokedynamic call sites whose
	// method name has no mapping instead of staying silent about them.
	LogUnknownInvokeDynamic bool
}

// Request is one remapping run. Input classes win over PatchSources
// classes with the same name; PatchSources resources are copied only
// where the input has none.
type Request struct {
	Input        string
	PatchSources []string
	Output       string
	Classpath    []string

	// OmitPrefixes lists name prefixes whose entries are not taken
	// from patch sources, for trees a later stage overlays on its own
	// terms.
	OmitPrefixes []string
}

// JarRemapper remaps whole jars between the namespaces it was built
// for.
type JarRemapper interface {
	Remap(req Request) error
}

// Remapper is the built-in JarRemapper over a mapping tree. A
// Remapper is bound to one namespace direction; build a fresh one per
// direction.
type Remapper struct {
	tree      *mapping.Tree
	opts      Options
	logger    *slog.Logger
	inner     map[string]string // derived inner class mappings
	descCache *lru.Cache[string, string]
	known     *hashset.Set // class names seen on the classpath or in a source jar
	warned    *hashset.Set
}

func NewRemapper(tree *mapping.Tree, opts Options, logger *slog.Logger) (*Remapper, error) {
	descCache, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	return &Remapper{
		tree:      tree,
		opts:      opts,
		logger:    logger,
		inner:     make(map[string]string),
		descCache: descCache,
		known:     hashset.New(),
		warned:    hashset.New(),
	}, nil
}

func (r *Remapper) Remap(req Request) error {
	for _, path := range req.Classpath {
		if err := r.scanClasspath(path); err != nil {
			return err
		}
	}

	input, err := jar.Open(req.Input)
	if err != nil {
		return err
	}
	defer input.Close()

	sources := []*jar.Jar{input}
	for _, path := range req.PatchSources {
		src, err := jar.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		sources = append(sources, src)
	}

	// Collect class names in archive order across all sources so the
	// inner class mappings are complete before any class is rewritten.
	classNames := linkedhashset.New()
	for _, src := range sources {
		for _, name := range src.Names() {
			if strings.HasSuffix(name, ".class") {
				classNames.Add(strings.TrimSuffix(name, ".class"))
			}
		}
	}
	for _, v := range classNames.Values() {
		r.known.Add(v)
		r.deriveInnerMapping(v.(string))
	}

	output, err := jar.Create(req.Output)
	if err != nil {
		return err
	}
	defer output.Close()

	written := hashset.New()
	for tag, src := range sources {
		if err := r.remapSource(req, src, output, tag, written); err != nil {
			return err
		}
	}
	return output.Close()
}

// remapSource writes one source jar's entries into the output. The
// primary source (tag 0) wins all conflicts; later sources only fill
// gaps.
func (r *Remapper) remapSource(req Request, src, output *jar.Jar, tag int, written *hashset.Set) error {
	for _, name := range src.Names() {
		if strings.HasSuffix(name, "/") {
			continue
		}
		if tag > 0 && hasAnyPrefix(name, req.OmitPrefixes) {
			continue
		}
		data, err := src.Bytes(name)
		if err != nil {
			return err
		}

		if strings.HasSuffix(name, ".class") {
			className := strings.TrimSuffix(name, ".class")
			if written.Contains(className) {
				continue
			}
			written.Add(className)
			remapped, err := r.remapClass(data)
			if err != nil {
				return fmt.Errorf("remapping %s: %w", name, err)
			}
			output.Write(r.mapClassName(className)+".class", remapped)
			continue
		}

		outName, outData, keep := r.remapResource(req, name, data, tag)
		if !keep || written.Contains(outName) {
			continue
		}
		written.Add(outName)
		output.Write(outName, outData)
	}
	return nil
}

// remapResource decides the output name and bytes for a non-class
// entry. Patch source signing material is dropped; service
// registrations are remapped in both file name and content.
func (r *Remapper) remapResource(req Request, name string, data []byte, tag int) (string, []byte, bool) {
	if tag > 0 && isSigningEntry(name) {
		return "", nil, false
	}
	if serviceName, ok := strings.CutPrefix(name, "META-INF/services/"); ok {
		outName := "META-INF/services/" + r.mapExternalName(serviceName)
		return outName, r.remapServiceFile(data), true
	}
	return name, data, true
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func isSigningEntry(name string) bool {
	if name == "META-INF/MANIFEST.MF" {
		return true
	}
	if !strings.HasPrefix(name, "META-INF/") {
		return false
	}
	return strings.HasSuffix(name, ".SF") ||
		strings.HasSuffix(name, ".DSA") ||
		strings.HasSuffix(name, ".RSA")
}

// remapServiceFile maps the class names listed in a service
// registration, keeping comments and blank lines.
func (r *Remapper) remapServiceFile(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines[i] = r.mapExternalName(trimmed)
	}
	return []byte(strings.Join(lines, "\n"))
}

func (r *Remapper) mapExternalName(external string) string {
	return mapping.ExternalClassName(r.mapClassName(mapping.InternalClassName(external)))
}

// scanClasspath records the class names a classpath jar provides.
func (r *Remapper) scanClasspath(path string) error {
	j, err := jar.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	for _, name := range j.Names() {
		if strings.HasSuffix(name, ".class") {
			r.known.Add(strings.TrimSuffix(name, ".class"))
		}
	}
	return nil
}

// deriveInnerMapping gives nested classes with no direct mapping the
// mapped name of their longest mapped outer prefix, keeping the
// nesting suffix.
func (r *Remapper) deriveInnerMapping(name string) {
	if _, ok := r.tree.MapClass(name); ok {
		return
	}
	for i := strings.LastIndexByte(name, '$'); i > 0; i = strings.LastIndexByte(name[:i], '$') {
		if outer, ok := r.tree.MapClass(name[:i]); ok {
			r.inner[name] = outer + name[i:]
			return
		}
	}
}

// mapClassName maps an internal class name, also accepting array
// descriptor form.
func (r *Remapper) mapClassName(name string) string {
	if strings.HasPrefix(name, "[") {
		return r.mapDescriptor(name)
	}
	if mapped, ok := r.tree.MapClass(name); ok {
		return mapped
	}
	if mapped, ok := r.inner[name]; ok {
		return mapped
	}
	r.noteUnknown(name)
	return name
}

// noteUnknown logs the first reference to a class that neither the
// mappings nor the classpath account for. JDK classes are expected to
// be absent from both.
func (r *Remapper) noteUnknown(name string) {
	if strings.HasPrefix(name, "java/") || strings.HasPrefix(name, "javax/") {
		return
	}
	if r.known.Contains(name) || r.warned.Contains(name) {
		return
	}
	r.warned.Add(name)
	r.logger.Debug("class reference has no mapping", "class", name)
}

func (r *Remapper) mapDescriptor(desc string) string {
	if mapped, ok := r.descCache.Get(desc); ok {
		return mapped
	}
	mapped := classfile.MapDescriptor(desc, r.mapClassName)
	r.descCache.Add(desc, mapped)
	return mapped
}
