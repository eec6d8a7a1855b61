package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider hands out mapping trees for a requested namespace pair.
// Implementations may load lazily and are expected to be safe for
// concurrent use once returned trees are built.
type Provider interface {
	Mappings(from, to string) (*Tree, error)
}

// FileProvider loads mapping trees from files on disk, one file per
// namespace pair. The reader is picked by file extension: ".tsrg" uses
// the TSRG reader, everything else falls back to ProGuard format.
type FileProvider struct {
	files map[string]string
	cache map[string]*Tree
}

func NewFileProvider() *FileProvider {
	return &FileProvider{
		files: make(map[string]string),
		cache: make(map[string]*Tree),
	}
}

// Add registers the mapping file for a namespace pair. Later calls for
// the same pair replace the earlier file.
func (p *FileProvider) Add(from, to, path string) *FileProvider {
	p.files[from+"\x00"+to] = path
	delete(p.cache, from+"\x00"+to)
	return p
}

func (p *FileProvider) Mappings(from, to string) (*Tree, error) {
	key := from + "\x00" + to
	if tree, ok := p.cache[key]; ok {
		return tree, nil
	}

	path, ok := p.files[key]
	if !ok {
		return nil, fmt.Errorf("no mappings registered for %s -> %s", from, to)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mappings %s: %w", path, err)
	}
	defer f.Close()

	tree := NewTree(from, to)
	if strings.EqualFold(filepath.Ext(path), ".tsrg") {
		err = NewTsrgReader(f).Pump(tree)
	} else {
		err = NewProguardReader(f).Pump(tree)
	}
	if err != nil {
		return nil, err
	}

	p.cache[key] = tree
	return tree, nil
}
