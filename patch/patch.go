// Package patch invokes the binary patcher that turns a clean srg
// jar into its patched counterpart. The patcher is an external Java
// tool; this package wraps the process plumbing around it.
package patch

import (
	"fmt"
	"os"
	"os/exec"
)

// Applier applies a binary patch set to a clean jar, producing the
// output jar. The clean jar is never modified.
type Applier interface {
	Apply(cleanJar, patchSet, outputJar string) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(cleanJar, patchSet, outputJar string) error

func (f ApplierFunc) Apply(cleanJar, patchSet, outputJar string) error {
	return f(cleanJar, patchSet, outputJar)
}

// CommandApplier runs the patcher tool jar with the configured java
// binary. Tool output is discarded; failures surface through the
// exit code.
type CommandApplier struct {
	Java string // java binary, "java" when empty
	Tool string // path to the patcher tool jar
}

func (a *CommandApplier) Apply(cleanJar, patchSet, outputJar string) error {
	java := a.Java
	if java == "" {
		java = "java"
	}
	cmd := exec.Command(java, "-jar", a.Tool,
		"--clean", cleanJar,
		"--output", outputJar,
		"--apply", patchSet,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("patching %s: %w", cleanJar, err)
	}
	return nil
}

// CaptureStdout redirects the process's stdout to the null device for
// the duration of fn. Some patcher tools write progress noise through
// inherited descriptors rather than their own pipes; this keeps it
// out of the build log.
func CaptureStdout(fn func() error) error {
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()

	saved := os.Stdout
	os.Stdout = devnull
	defer func() { os.Stdout = saved }()

	return fn()
}
