package jar

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const versionsListPath = "META-INF/versions.list"

// UnpackEntry reads a single entry out of a jar without mounting it.
// A missing jar or missing entry yields (nil, nil); callers that need
// the entry treat nil as a lookup miss.
func UnpackEntry(jarPath, name string) ([]byte, error) {
	r, err := zip.OpenReader(jarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jar: opening %s: %w", jarPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("jar: opening entry %s in %s: %w", name, jarPath, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("jar: reading entry %s in %s: %w", name, jarPath, err)
		}
		return data, nil
	}
	return nil, nil
}

// IsServerBundle reports whether the jar is a server bundler archive,
// i.e. one that nests the real server jar under META-INF/versions.
func IsServerBundle(jarPath string) (bool, error) {
	list, err := UnpackEntry(jarPath, versionsListPath)
	if err != nil {
		return false, err
	}
	return list != nil, nil
}

// ExtractBundledServer pulls the nested server jar out of a bundler
// archive and writes it to target. The versions list holds
// tab-separated "hash id path" rows; the first row names the jar.
func ExtractBundledServer(bundlePath, target string) error {
	list, err := UnpackEntry(bundlePath, versionsListPath)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("jar: %s is not a server bundle (missing %s)", bundlePath, versionsListPath)
	}

	var inner string
	scanner := bufio.NewScanner(strings.NewReader(string(list)))
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
		if len(fields) == 3 {
			inner = "META-INF/versions/" + fields[2]
			break
		}
	}
	if inner == "" {
		return fmt.Errorf("jar: %s has an empty versions list", bundlePath)
	}

	data, err := UnpackEntry(bundlePath, inner)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("jar: %s names %s but does not contain it", bundlePath, inner)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("jar: writing extracted server jar: %w", err)
	}
	return nil
}
