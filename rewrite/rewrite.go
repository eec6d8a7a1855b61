// Package rewrite applies in-place class file transforms across a
// mounted jar. The patched jars carry compiler-generated parameter
// name placeholders and misaligned parameter annotations; the
// transforms here clean both up before the jar is remapped.
package rewrite

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ManiacGamer156/architectury-loom/classfile"
	"github.com/ManiacGamer156/architectury-loom/jar"
)

// Transform mutates a parsed class and reports whether it changed
// anything. A transform must leave the class untouched when it
// returns false.
type Transform func(c *classfile.Class) (bool, error)

// Apply runs every transform over every class entry of the jar,
// re-encoding and writing back the entries that changed. Classes are
// processed concurrently; all entries are attempted even when one
// fails, and the first error is returned.
func Apply(j *jar.Jar, transforms ...Transform) error {
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))

	for _, name := range j.Names() {
		if !isClassEntry(name) {
			continue
		}
		name := name
		group.Go(func() error {
			data, err := j.Bytes(name)
			if err != nil {
				return err
			}
			c, err := classfile.Parse(data)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", name, err)
			}
			changed := false
			for _, transform := range transforms {
				did, err := transform(c)
				if err != nil {
					return fmt.Errorf("rewriting %s: %w", name, err)
				}
				changed = changed || did
			}
			if changed {
				j.Write(name, c.Encode())
			}
			return nil
		})
	}

	return group.Wait()
}

func isClassEntry(name string) bool {
	return len(name) > 6 && name[len(name)-6:] == ".class"
}
