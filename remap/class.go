package remap

import (
	"strconv"
	"strings"

	"github.com/ManiacGamer156/architectury-loom/classfile"
)

// remapClass rewrites one class file's names. References to renamed
// Utf8 constants are repointed to freshly appended constants; the
// originals stay untouched because other pool entries may share them.
func (r *Remapper) remapClass(data []byte) ([]byte, error) {
	c, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	cr := &classRemapper{r: r, c: c, utf8: make(map[string]uint16)}
	if err := cr.run(); err != nil {
		return nil, err
	}
	return c.Encode(), nil
}

type classRemapper struct {
	r    *Remapper
	c    *classfile.Class
	utf8 map[string]uint16 // appended Utf8 constants, deduped
}

func (cr *classRemapper) run() error {
	cr.remapPool()
	if err := cr.remapMembers(cr.c.Fields, false); err != nil {
		return err
	}
	if err := cr.remapMembers(cr.c.Methods, true); err != nil {
		return err
	}
	return cr.remapClassAttrs()
}

// addUtf8 returns a constant index for s, appending at most one new
// constant per distinct string.
func (cr *classRemapper) addUtf8(s string) uint16 {
	if i, ok := cr.utf8[s]; ok {
		return i
	}
	i := cr.c.AddUtf8(s)
	cr.utf8[s] = i
	return i
}

// repoint returns the index to use for the Utf8 at i after applying
// mapString, appending a new constant only when the value changed.
func (cr *classRemapper) repoint(i uint16, mapString func(string) string) uint16 {
	if i == 0 {
		return 0
	}
	old := cr.c.Pool.Utf8(i)
	mapped := mapString(old)
	if mapped == old {
		return i
	}
	return cr.addUtf8(mapped)
}

func (cr *classRemapper) remapPool() {
	pool := cr.c.Pool

	// invokedynamic NameAndType indexes, for unknown-callsite logging.
	indy := map[uint16]bool{}
	for i := 1; i < len(pool); i++ {
		if pool[i].Tag == classfile.TagInvokeDynamic {
			indy[pool[i].Ref2] = true
		}
	}

	// The pool grows while we repoint; only the original entries need
	// visiting.
	size := len(pool)
	for i := 1; i < size; i++ {
		switch cr.c.Pool[i].Tag {
		case classfile.TagClass:
			cr.c.Pool[i].Ref1 = cr.repoint(cr.c.Pool[i].Ref1, cr.r.mapClassName)
		case classfile.TagMethodType:
			cr.c.Pool[i].Ref1 = cr.repoint(cr.c.Pool[i].Ref1, cr.r.mapDescriptor)
		case classfile.TagNameAndType:
			cr.remapNameAndType(uint16(i), indy[uint16(i)])
		}
	}
}

func (cr *classRemapper) remapNameAndType(i uint16, isIndy bool) {
	name := cr.c.Pool.Utf8(cr.c.Pool[i].Ref1)
	desc := cr.c.Pool.Utf8(cr.c.Pool[i].Ref2)

	var newName string
	var known bool
	if strings.HasPrefix(desc, "(") {
		newName, known = cr.r.tree.MapMethod(name, desc)
	} else {
		newName, known = cr.r.tree.MapField(name, desc)
	}
	if known && newName != name {
		cr.c.Pool[i].Ref1 = cr.addUtf8(newName)
	}
	if !known && isIndy && cr.r.opts.LogUnknownInvokeDynamic {
		cr.r.logger.Debug("invokedynamic call site has no mapping",
			"class", cr.c.Name(), "name", name, "desc", desc)
	}
	cr.c.Pool[i].Ref2 = cr.repoint(cr.c.Pool[i].Ref2, cr.r.mapDescriptor)
}

func (cr *classRemapper) remapMembers(members []classfile.Member, methods bool) error {
	for mi := range members {
		m := &members[mi]
		name := cr.c.Pool.Utf8(m.NameIndex)
		desc := cr.c.Pool.Utf8(m.DescIndex)

		var newName string
		var known bool
		if methods {
			newName, known = cr.r.tree.MapMethod(name, desc)
		} else {
			newName, known = cr.r.tree.MapField(name, desc)
		}
		if known && newName != name {
			m.NameIndex = cr.addUtf8(newName)
		}
		m.DescIndex = cr.repoint(m.DescIndex, cr.r.mapDescriptor)

		for ai := range m.Attrs {
			if err := cr.remapMemberAttr(&m.Attrs[ai]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cr *classRemapper) remapMemberAttr(attr *classfile.Attribute) error {
	switch cr.c.AttrName(*attr) {
	case classfile.AttrSignature:
		cr.remapSignatureAttr(attr)
	case classfile.AttrCode:
		return cr.remapCodeAttr(attr)
	case classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations:
		data, err := classfile.RemapAnnotationTypes(attr.Data, cr.descIndexMapper())
		if err != nil {
			return err
		}
		attr.Data = data
	case classfile.AttrRuntimeVisibleParameterAnnotations, classfile.AttrRuntimeInvisibleParameterAnnotations:
		data, err := classfile.RemapParameterAnnotationTypes(attr.Data, cr.descIndexMapper())
		if err != nil {
			return err
		}
		attr.Data = data
	}
	return nil
}

// descIndexMapper adapts repoint for annotation payloads, which store
// type descriptors as pool indexes.
func (cr *classRemapper) descIndexMapper() func(uint16) uint16 {
	return func(i uint16) uint16 {
		return cr.repoint(i, cr.r.mapDescriptor)
	}
}

// remapSignatureAttr repoints the Utf8 behind a Signature attribute.
// Generic signatures reference classes in the same L...; form as
// descriptors, so the descriptor mapper covers them.
func (cr *classRemapper) remapSignatureAttr(attr *classfile.Attribute) {
	if len(attr.Data) != 2 {
		return
	}
	i := uint16(attr.Data[0])<<8 | uint16(attr.Data[1])
	i = cr.repoint(i, cr.r.mapDescriptor)
	attr.Data = []byte{byte(i >> 8), byte(i)}
}

func (cr *classRemapper) remapCodeAttr(attr *classfile.Attribute) error {
	code, err := classfile.ParseCode(attr.Data)
	if err != nil {
		return err
	}
	changed := false
	for ai := range code.Attrs {
		inner := &code.Attrs[ai]
		name := cr.c.AttrName(*inner)
		if name != classfile.AttrLocalVariableTable && name != classfile.AttrLocalVariableTypeTable {
			continue
		}
		vars, err := classfile.ParseLocalVars(inner.Data)
		if err != nil {
			return err
		}
		for vi := range vars {
			vars[vi].DescIndex = cr.repoint(vars[vi].DescIndex, cr.r.mapDescriptor)
			if cr.r.opts.RenameInvalidLocals && !isJavaIdentifier(cr.c.Pool.Utf8(vars[vi].NameIndex)) {
				vars[vi].NameIndex = cr.addUtf8(localName(vars[vi].Slot))
			}
		}
		inner.Data = classfile.EncodeLocalVars(vars)
		changed = true
	}
	if changed {
		attr.Data = code.Encode()
	}
	return nil
}

func (cr *classRemapper) remapClassAttrs() error {
	for ai := range cr.c.Attrs {
		attr := &cr.c.Attrs[ai]
		switch cr.c.AttrName(*attr) {
		case classfile.AttrSignature:
			cr.remapSignatureAttr(attr)
		case classfile.AttrSourceFile:
			cr.remapSourceFile(attr)
		case classfile.AttrInnerClasses:
			if err := cr.remapInnerClasses(attr); err != nil {
				return err
			}
		case classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations:
			data, err := classfile.RemapAnnotationTypes(attr.Data, cr.descIndexMapper())
			if err != nil {
				return err
			}
			attr.Data = data
		}
	}
	return nil
}

// remapSourceFile rebuilds the SourceFile attribute from the remapped
// class name when asked to. The class constants were repointed before
// attributes, so Name() already yields the new name.
func (cr *classRemapper) remapSourceFile(attr *classfile.Attribute) {
	if !cr.r.opts.RebuildSourceFilenames {
		return
	}
	name := cr.c.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '$'); i > 0 {
		name = name[:i]
	}
	i := cr.addUtf8(name + ".java")
	attr.Data = []byte{byte(i >> 8), byte(i)}
}

// remapInnerClasses recomputes each row's simple name from the mapped
// inner class name. The class constant indexes were handled in the
// pool pass.
func (cr *classRemapper) remapInnerClasses(attr *classfile.Attribute) error {
	rows, err := classfile.ParseInnerClasses(attr.Data)
	if err != nil {
		return err
	}
	changed := false
	for i := range rows {
		if rows[i].NameIndex == 0 {
			continue
		}
		inner := cr.c.Pool.ClassName(rows[i].InnerIndex)
		simple := inner
		if j := strings.LastIndexByte(simple, '$'); j >= 0 {
			simple = simple[j+1:]
		}
		if j := strings.LastIndexByte(simple, '/'); j >= 0 {
			simple = simple[j+1:]
		}
		if cr.c.Pool.Utf8(rows[i].NameIndex) != simple {
			rows[i].NameIndex = cr.addUtf8(simple)
			changed = true
		}
	}
	if changed {
		attr.Data = classfile.EncodeInnerClasses(rows)
	}
	return nil
}

func isJavaIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 {
			if !alpha {
				return false
			}
			continue
		}
		if !alpha && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func localName(slot uint16) string {
	return "lvt" + strconv.Itoa(int(slot))
}
