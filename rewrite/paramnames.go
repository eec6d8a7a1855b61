package rewrite

import (
	"regexp"

	"github.com/ManiacGamer156/architectury-loom/classfile"
)

// Placeholder parameter names the decompile toolchain injects, e.g.
// "p_12345_1_" or "p_i4721_2_". Anything the pattern does not fully
// match is a real name and stays.
var placeholderName = regexp.MustCompile(`^p_[0-9a-zA-Z]+_(?:[0-9a-zA-Z]+_)?$`)

// StripParameterNames blanks placeholder names out of MethodParameters
// attributes and drops local variable (type) table rows that carry
// them. Real, human-written names survive both tables.
func StripParameterNames(c *classfile.Class) (bool, error) {
	changed := false
	for mi := range c.Methods {
		method := &c.Methods[mi]
		for ai := range method.Attrs {
			attr := &method.Attrs[ai]
			switch c.AttrName(*attr) {
			case classfile.AttrMethodParameters:
				did, err := stripMethodParameters(c, attr)
				if err != nil {
					return changed, err
				}
				changed = changed || did
			case classfile.AttrCode:
				did, err := stripCodeLocals(c, attr)
				if err != nil {
					return changed, err
				}
				changed = changed || did
			}
		}
	}
	return changed, nil
}

func stripMethodParameters(c *classfile.Class, attr *classfile.Attribute) (bool, error) {
	params, err := classfile.ParseMethodParameters(attr.Data)
	if err != nil {
		return false, err
	}
	changed := false
	for i := range params {
		if placeholderName.MatchString(c.Pool.Utf8(params[i].NameIndex)) {
			params[i].NameIndex = 0
			changed = true
		}
	}
	if changed {
		attr.Data = classfile.EncodeMethodParameters(params)
	}
	return changed, nil
}

func stripCodeLocals(c *classfile.Class, attr *classfile.Attribute) (bool, error) {
	code, err := classfile.ParseCode(attr.Data)
	if err != nil {
		return false, err
	}
	changed := false
	for ai := range code.Attrs {
		inner := &code.Attrs[ai]
		name := c.AttrName(*inner)
		if name != classfile.AttrLocalVariableTable && name != classfile.AttrLocalVariableTypeTable {
			continue
		}
		vars, err := classfile.ParseLocalVars(inner.Data)
		if err != nil {
			return changed, err
		}
		kept := vars[:0]
		for _, v := range vars {
			if placeholderName.MatchString(c.Pool.Utf8(v.NameIndex)) {
				changed = true
				continue
			}
			kept = append(kept, v)
		}
		if len(kept) != len(vars) {
			inner.Data = classfile.EncodeLocalVars(kept)
		}
	}
	if changed {
		attr.Data = code.Encode()
	}
	return changed, nil
}
