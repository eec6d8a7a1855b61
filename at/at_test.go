package at

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManiacGamer156/architectury-loom/classfile"
	"github.com/ManiacGamer156/architectury-loom/jar"
)

func writeJar(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accesstransformer.cfg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sampleClass() *classfile.Class {
	c := classfile.New("net/minecraft/Block", "java/lang/Object")
	c.Access = 0 // package-private
	c.AddField(classfile.AccPrivate|classfile.AccFinal, "registry", "Ljava/util/Map;")
	c.AddField(classfile.AccProtected, "count", "I")
	c.AddMethod(classfile.AccPrivate, "tick", "(I)V")
	c.AddMethod(classfile.AccPrivate, "tick", "(J)V")
	return c
}

func transformSample(t *testing.T, config string) *classfile.Class {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "input.jar")
	output := filepath.Join(dir, "output.jar")
	writeJar(t, input, map[string][]byte{
		"net/minecraft/Block.class": sampleClass().Encode(),
		"data/pack.json":            []byte("{}"),
	})

	tr := &WideningTransformer{}
	require.NoError(t, tr.Transform(input, output, []string{writeConfig(t, config)}))

	out, err := jar.Open(output)
	require.NoError(t, err)
	defer out.Close()
	assert.True(t, out.Has("data/pack.json"))
	data, err := out.Bytes("net/minecraft/Block.class")
	require.NoError(t, err)
	c, err := classfile.Parse(data)
	require.NoError(t, err)
	return c
}

func TestTransform_ClassDirective(t *testing.T) {
	c := transformSample(t, "public net.minecraft.Block\n")
	assert.NotZero(t, c.Access&classfile.AccPublic)
}

func TestTransform_FieldDirective(t *testing.T) {
	c := transformSample(t, "public-f net.minecraft.Block registry # widen the registry\n")
	field := c.Fields[0]
	assert.NotZero(t, field.Access&classfile.AccPublic)
	assert.Zero(t, field.Access&classfile.AccFinal)
	// The other field is untouched.
	assert.NotZero(t, c.Fields[1].Access&classfile.AccProtected)
}

func TestTransform_MethodDirectiveMatchesDescriptor(t *testing.T) {
	c := transformSample(t, "public net.minecraft.Block tick(I)V\n")
	assert.NotZero(t, c.Methods[0].Access&classfile.AccPublic)
	assert.NotZero(t, c.Methods[1].Access&classfile.AccPrivate)
}

func TestTransform_Wildcards(t *testing.T) {
	c := transformSample(t, "public net.minecraft.Block *\npublic net.minecraft.Block *()\n")
	for _, f := range c.Fields {
		assert.NotZero(t, f.Access&classfile.AccPublic)
	}
	for _, m := range c.Methods {
		assert.NotZero(t, m.Access&classfile.AccPublic)
	}
}

func TestTransform_NeverNarrows(t *testing.T) {
	c := transformSample(t, "private net.minecraft.Block count\n")
	assert.NotZero(t, c.Fields[1].Access&classfile.AccProtected)
}

func TestTransform_InnerClassRow(t *testing.T) {
	outer := classfile.New("a/Outer", "java/lang/Object")
	rows := []classfile.InnerClass{{
		InnerIndex: outer.AddClassConstant("a/Outer$Inner"),
		OuterIndex: outer.ThisClass,
		NameIndex:  outer.AddUtf8("Inner"),
		Access:     classfile.AccPrivate,
	}}
	outer.Attrs = append(outer.Attrs, outer.NewAttr(classfile.AttrInnerClasses,
		classfile.EncodeInnerClasses(rows)))
	inner := classfile.New("a/Outer$Inner", "java/lang/Object")
	inner.Access = classfile.AccPrivate

	dir := t.TempDir()
	input := filepath.Join(dir, "input.jar")
	output := filepath.Join(dir, "output.jar")
	writeJar(t, input, map[string][]byte{
		"a/Outer.class":       outer.Encode(),
		"a/Outer$Inner.class": inner.Encode(),
	})

	tr := &WideningTransformer{}
	config := writeConfig(t, "public a.Outer$Inner\n")
	require.NoError(t, tr.Transform(input, output, []string{config}))

	out, err := jar.Open(output)
	require.NoError(t, err)
	defer out.Close()

	data, err := out.Bytes("a/Outer.class")
	require.NoError(t, err)
	parsed, err := classfile.Parse(data)
	require.NoError(t, err)
	gotRows, err := classfile.ParseInnerClasses(parsed.Attrs[0].Data)
	require.NoError(t, err)
	assert.NotZero(t, gotRows[0].Access&classfile.AccPublic)

	data, err = out.Bytes("a/Outer$Inner.class")
	require.NoError(t, err)
	parsedInner, err := classfile.Parse(data)
	require.NoError(t, err)
	assert.NotZero(t, parsedInner.Access&classfile.AccPublic)
}

func TestTransform_BadDirective(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.jar")
	output := filepath.Join(dir, "output.jar")
	writeJar(t, input, map[string][]byte{})

	tr := &WideningTransformer{}
	config := writeConfig(t, "sometimes net.minecraft.Block\n")
	err := tr.Transform(input, output, []string{config})
	assert.ErrorContains(t, err, "unknown access modifier")
}

func TestCollectConfigs(t *testing.T) {
	dir := t.TempDir()
	withConfig := filepath.Join(dir, "forge.jar")
	withoutConfig := filepath.Join(dir, "plain.jar")
	writeJar(t, withConfig, map[string][]byte{
		ConfigPath: []byte("public net.minecraft.Block\n"),
	})
	writeJar(t, withoutConfig, map[string][]byte{
		"a.txt": []byte("x"),
	})

	files, cleanup, err := CollectConfigs(withConfig, withoutConfig, filepath.Join(dir, "missing.jar"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "public net.minecraft.Block\n", string(data))

	cleanup()
	_, err = os.Stat(files[0])
	assert.True(t, os.IsNotExist(err))
}
