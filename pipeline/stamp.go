package pipeline

import (
	"fmt"
	"strings"

	"github.com/ManiacGamer156/architectury-loom/jar"
)

const (
	manifestPath = "META-INF/MANIFEST.MF"

	// patchVersionKey marks a terminal jar as produced by this
	// pipeline generation. Bump patchVersion whenever stage output
	// changes in a way that requires rebuilding old caches.
	patchVersionKey = "Loom-Patch-Version"
	patchVersion    = "6"
)

// isPatchedJarUpToDate reports whether the terminal jar carries the
// current patch version stamp. Any read failure or absent stamp means
// not up to date; a missing jar is simply stale, never an error.
func (p *Provider) isPatchedJarUpToDate(jarPath string) bool {
	data, err := jar.UnpackEntry(jarPath, manifestPath)
	if err != nil || data == nil {
		return false
	}
	value, ok := mainAttribute(data, patchVersionKey)
	if !ok || value != patchVersion {
		p.logger.Info("couldn't find expected patch version, treating patched jar as outdated",
			"jar", jarPath, "found", value, "expected", patchVersion)
		return false
	}
	return true
}

// applyPatchVersion stamps the terminal jar. The jar must already
// carry a manifest; a missing manifest means an earlier stage failed
// to copy it and the jar should not be stamped as good.
func applyPatchVersion(jarPath string) error {
	j, err := jar.Open(jarPath)
	if err != nil {
		return err
	}
	defer j.Close()

	manifest, err := j.Bytes(manifestPath)
	if err != nil {
		return fmt.Errorf("stamping %s: %w", jarPath, err)
	}
	j.Write(manifestPath, setMainAttribute(manifest, patchVersionKey, patchVersion))
	return j.Close()
}

// mainAttribute reads one key from the manifest's main section.
// Continuation lines don't occur for the attributes the pipeline
// reads, so a line scan is enough.
func mainAttribute(manifest []byte, key string) (string, bool) {
	for _, line := range strings.Split(string(manifest), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			// End of the main section.
			return "", false
		}
		if value, ok := strings.CutPrefix(line, key+": "); ok {
			return value, true
		}
	}
	return "", false
}

// setMainAttribute replaces or appends a key in the manifest's main
// section, leaving every other line as it was.
func setMainAttribute(manifest []byte, key, value string) []byte {
	lines := strings.Split(string(manifest), "\n")
	entry := key + ": " + value

	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed == "" {
			// Insert before the blank line ending the main section.
			lines = append(lines[:i], append([]string{entry}, lines[i:]...)...)
			return []byte(strings.Join(lines, "\n"))
		}
		if strings.HasPrefix(trimmed, key+":") {
			lines[i] = entry
			return []byte(strings.Join(lines, "\n"))
		}
	}
	lines = append(lines, entry, "")
	return []byte(strings.Join(lines, "\n"))
}
