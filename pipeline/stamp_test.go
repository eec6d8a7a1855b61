package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMainAttribute(t *testing.T) {
	manifest := []byte("Manifest-Version: 1.0\r\nLoom-Patch-Version: 6\r\n\r\nName: a\r\nSealed: true\r\n")

	value, ok := mainAttribute(manifest, "Loom-Patch-Version")
	assert.True(t, ok)
	assert.Equal(t, "6", value)

	// Per-entry sections are not part of the main section.
	_, ok = mainAttribute(manifest, "Sealed")
	assert.False(t, ok)

	_, ok = mainAttribute(manifest, "Missing-Key")
	assert.False(t, ok)
}

func TestSetMainAttribute_Replaces(t *testing.T) {
	manifest := []byte("Manifest-Version: 1.0\nLoom-Patch-Version: 5\n\n")
	got := setMainAttribute(manifest, "Loom-Patch-Version", "6")

	value, ok := mainAttribute(got, "Loom-Patch-Version")
	assert.True(t, ok)
	assert.Equal(t, "6", value)

	value, ok = mainAttribute(got, "Manifest-Version")
	assert.True(t, ok)
	assert.Equal(t, "1.0", value)
}

func TestSetMainAttribute_Appends(t *testing.T) {
	manifest := []byte("Manifest-Version: 1.0\n\nName: a\nSealed: true\n")
	got := setMainAttribute(manifest, "Loom-Patch-Version", "6")

	value, ok := mainAttribute(got, "Loom-Patch-Version")
	assert.True(t, ok)
	assert.Equal(t, "6", value)

	// The entry section survives untouched.
	assert.Contains(t, string(got), "Name: a\nSealed: true\n")
}
