package rewrite

import (
	"github.com/ManiacGamer156/architectury-loom/classfile"
)

// FixParameterAnnotations realigns RuntimeVisible/Invisible
// ParameterAnnotations on constructors whose leading parameters are
// compiler-synthesized. javac emits annotation entries for the
// synthetic slots (the enum name and ordinal, or the outer instance)
// while newer tooling does not, so patched classes can carry one entry
// per declared parameter including the synthetic ones. When the entry
// count matches the full descriptor, the leading synthetic entries are
// dropped.
func FixParameterAnnotations(c *classfile.Class) (bool, error) {
	synthetics := syntheticParamCount(c)
	if synthetics == 0 {
		return false, nil
	}

	changed := false
	for mi := range c.Methods {
		method := &c.Methods[mi]
		if c.Pool.Utf8(method.NameIndex) != "<init>" {
			continue
		}
		declared := classfile.ParamCount(c.Pool.Utf8(method.DescIndex))
		for ai := range method.Attrs {
			attr := &method.Attrs[ai]
			name := c.AttrName(*attr)
			if name != classfile.AttrRuntimeVisibleParameterAnnotations &&
				name != classfile.AttrRuntimeInvisibleParameterAnnotations {
				continue
			}
			chunks, err := classfile.SplitParameterAnnotations(attr.Data)
			if err != nil {
				return changed, err
			}
			if len(chunks) != declared || len(chunks) < synthetics {
				continue
			}
			attr.Data = classfile.JoinParameterAnnotations(chunks[synthetics:])
			changed = true
		}
	}
	return changed, nil
}

// syntheticParamCount returns how many leading constructor parameters
// the compiler synthesized: two for enums (name and ordinal), one for
// non-static inner classes (the outer instance).
func syntheticParamCount(c *classfile.Class) int {
	if c.Access&classfile.AccEnum != 0 {
		return 2
	}
	for _, attr := range c.Attrs {
		if c.AttrName(attr) != classfile.AttrInnerClasses {
			continue
		}
		rows, err := classfile.ParseInnerClasses(attr.Data)
		if err != nil {
			return 0
		}
		for _, row := range rows {
			if row.InnerIndex != c.ThisClass {
				continue
			}
			if row.OuterIndex != 0 && row.Access&classfile.AccStatic == 0 {
				return 1
			}
			return 0
		}
	}
	return 0
}
