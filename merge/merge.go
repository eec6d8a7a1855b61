// Package merge copies entries between mounted jars. It backs the
// client/server merge step and the userdev resource overlay, where a
// patched jar is completed with entries it is missing from another
// artifact.
package merge

import (
	"strings"

	"github.com/ManiacGamer156/architectury-loom/jar"
)

// NameMappingServicePath is the service registration that wires the
// srg-to-official name mapping service into the mod loader. It is
// always excluded from userdev copies: the final jar carries official
// names already, and shipping the service would make the loader remap
// a jar that needs no remapping.
const NameMappingServicePath = "inject/META-INF/services/cpw.mods.modlauncher.api.INameMappingService"

// Filter selects entries by name. Entry names never carry a leading
// slash.
type Filter func(name string) bool

// Classes matches class file entries.
func Classes(name string) bool {
	return strings.HasSuffix(name, ".class")
}

// NonClasses matches everything that is not a class file.
func NonClasses(name string) bool {
	return !Classes(name)
}

// Everything matches all entries.
func Everything(string) bool {
	return true
}

// CopyMissing copies every matching entry from source that target does
// not already contain. Returns the number of entries copied.
func CopyMissing(source, target *jar.Jar, filter Filter) (int, error) {
	copied := 0
	for _, name := range source.Names() {
		if !filter(name) || target.Has(name) {
			continue
		}
		data, err := source.Bytes(name)
		if err != nil {
			return copied, err
		}
		target.Write(name, data)
		copied++
	}
	return copied, nil
}

// CopyOverwrite copies every matching entry from source into target,
// replacing entries that already exist. Returns the number of entries
// copied.
func CopyOverwrite(source, target *jar.Jar, filter Filter) (int, error) {
	copied := 0
	for _, name := range source.Names() {
		if !filter(name) {
			continue
		}
		data, err := source.Bytes(name)
		if err != nil {
			return copied, err
		}
		target.Write(name, data)
		copied++
	}
	return copied, nil
}

// CopyExcluding copies matching entries found under the given roots
// into target, overwriting existing entries. An empty root selects the
// whole jar and keeps entry names as they are; a named root such as
// "inject" selects only entries below it and strips the root prefix
// from the copied name. The name mapping service registration is
// excluded unconditionally, before the filter runs.
func CopyExcluding(source, target *jar.Jar, roots []string, filter Filter) (int, error) {
	copied := 0
	for _, name := range source.Names() {
		if name == NameMappingServicePath {
			continue
		}
		for _, root := range roots {
			out, ok := relativize(name, root)
			if !ok || !filter(out) {
				continue
			}
			data, err := source.Bytes(name)
			if err != nil {
				return copied, err
			}
			target.Write(out, data)
			copied++
			break
		}
	}
	return copied, nil
}

// relativize reports whether name sits under root and returns the name
// the copy should carry. The empty root matches everything without
// renaming.
func relativize(name, root string) (string, bool) {
	if root == "" {
		return name, true
	}
	prefix := root + "/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return name[len(prefix):], true
}
