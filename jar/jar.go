// Package jar mounts jar archives as in-memory entry maps that can be
// read, rewritten and committed back to disk in one shot.
package jar

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Archives mounted for writing are tracked process-wide. Mounting the
// same archive for writing twice is a hard error: the second mount
// would race the first one's rewrite on close. The JVM implementation
// this mirrors can deadlock or crash in that situation, so we refuse
// up front instead of relying on callers to get the ordering right.
var (
	writeMountsMu sync.Mutex
	writeMounts   = map[string]struct{}{}
)

func acquireWriteMount(path string) error {
	writeMountsMu.Lock()
	defer writeMountsMu.Unlock()

	if _, open := writeMounts[path]; open {
		return fmt.Errorf("jar: %s is already mounted for writing", path)
	}
	writeMounts[path] = struct{}{}
	return nil
}

func releaseWriteMount(path string) {
	writeMountsMu.Lock()
	delete(writeMounts, path)
	writeMountsMu.Unlock()
}

// Jar is a mounted jar archive. Entries are keyed by their zip name
// ("com/example/Foo.class", no leading slash) and keep the order they
// were first written in, so an untouched mount commits deterministically.
//
// A Jar may be read and written from multiple goroutines; physical
// writes are serialized internally. The archive file itself is only
// rewritten by Close, and only when an entry changed.
type Jar struct {
	path     string
	absPath  string
	closed   bool
	created  bool

	mu      sync.Mutex
	names   []string
	entries map[string][]byte
	dirty   bool
}

// Open mounts an existing jar for reading and writing.
func Open(path string) (*Jar, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("jar: resolving %s: %w", path, err)
	}
	if err := acquireWriteMount(abs); err != nil {
		return nil, err
	}

	j := &Jar{path: path, absPath: abs, entries: map[string][]byte{}}
	if err := j.load(); err != nil {
		releaseWriteMount(abs)
		return nil, err
	}
	return j, nil
}

// Create mounts a new, empty jar. The file is written on Close even if
// no entries were added, replacing any previous file at path.
func Create(path string) (*Jar, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("jar: resolving %s: %w", path, err)
	}
	if err := acquireWriteMount(abs); err != nil {
		return nil, err
	}

	return &Jar{
		path:    path,
		absPath: abs,
		created: true,
		entries: map[string][]byte{},
		dirty:   true,
	}, nil
}

func (j *Jar) load() error {
	r, err := zip.OpenReader(j.path)
	if err != nil {
		return fmt.Errorf("jar: opening %s: %w", j.path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("jar: opening entry %s in %s: %w", f.Name, j.path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("jar: reading entry %s in %s: %w", f.Name, j.path, err)
		}
		if _, seen := j.entries[f.Name]; !seen {
			j.names = append(j.names, f.Name)
		}
		j.entries[f.Name] = data
	}
	return nil
}

// Names returns the entry names in archive order.
func (j *Jar) Names() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.names))
	copy(out, j.names)
	return out
}

// Has reports whether the jar contains the named entry.
func (j *Jar) Has(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.entries[name]
	return ok
}

// Bytes returns the contents of the named entry.
func (j *Jar) Bytes(name string) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, ok := j.entries[name]
	if !ok {
		return nil, fmt.Errorf("jar: no entry %s in %s", name, j.path)
	}
	return data, nil
}

// Write adds or replaces an entry. Parent directories are implicit in
// zip naming; there is nothing to create for them.
func (j *Jar) Write(name string, data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, seen := j.entries[name]; !seen {
		j.names = append(j.names, name)
	}
	j.entries[name] = data
	j.dirty = true
}

// Delete removes an entry if present.
func (j *Jar) Delete(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.entries[name]; !ok {
		return
	}
	delete(j.entries, name)
	for i, n := range j.names {
		if n == name {
			j.names = append(j.names[:i], j.names[i+1:]...)
			break
		}
	}
	j.dirty = true
}

// Close commits the mount. When entries changed (or the jar was freshly
// created) the archive is rebuilt in a temp file and renamed into
// place, so a crash mid-write never leaves a half-written jar at the
// final path.
func (j *Jar) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	defer releaseWriteMount(j.absPath)

	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.dirty {
		return nil
	}
	return j.commit()
}

func (j *Jar) commit() error {
	dir := filepath.Dir(j.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(j.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("jar: creating temp file for %s: %w", j.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := zip.NewWriter(tmp)
	for _, name := range j.names {
		f, err := w.Create(name)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("jar: creating entry %s in %s: %w", name, j.path, err)
		}
		if _, err := f.Write(j.entries[name]); err != nil {
			tmp.Close()
			return fmt.Errorf("jar: writing entry %s in %s: %w", name, j.path, err)
		}
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("jar: finalizing %s: %w", j.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jar: closing temp file for %s: %w", j.path, err)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		return fmt.Errorf("jar: committing %s: %w", j.path, err)
	}
	return nil
}
