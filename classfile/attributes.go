package classfile

import (
	"encoding/binary"
	"fmt"
)

// Attribute names the transforms work with.
const (
	AttrCode                                 = "Code"
	AttrMethodParameters                     = "MethodParameters"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrSourceFile                           = "SourceFile"
	AttrInnerClasses                         = "InnerClasses"
	AttrSignature                            = "Signature"
)

// Code is a decoded Code attribute. The bytecode and exception table
// are opaque; only the nested attributes get structured access.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Bytecode       []byte
	ExceptionTable []byte // raw entries, 8 bytes each
	Attrs          []Attribute
}

// ParseCode decodes a Code attribute payload.
func ParseCode(data []byte) (*Code, error) {
	r := &reader{data: data}
	code := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	code.Bytecode = r.bytes(int(r.u4()))
	code.ExceptionTable = r.bytes(8 * int(r.u2()))
	code.Attrs = r.attributes()
	if r.err != nil {
		return nil, fmt.Errorf("parsing Code attribute: %w", r.err)
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("parsing Code attribute: %d trailing bytes", len(data)-r.pos)
	}
	return code, nil
}

// Encode re-serializes the Code attribute payload.
func (code *Code) Encode() []byte {
	w := &writer{}
	w.u2(code.MaxStack)
	w.u2(code.MaxLocals)
	w.u4(uint32(len(code.Bytecode)))
	w.raw(code.Bytecode)
	w.u2(uint16(len(code.ExceptionTable) / 8))
	w.raw(code.ExceptionTable)
	w.writeAttributes(code.Attrs)
	return w.buf
}

// LocalVar is one LocalVariableTable (or LocalVariableTypeTable) row.
// For the type table, DescIndex holds the signature index.
type LocalVar struct {
	Start     uint16
	Length    uint16
	NameIndex uint16
	DescIndex uint16
	Slot      uint16
}

// ParseLocalVars decodes a local variable (type) table payload.
func ParseLocalVars(data []byte) ([]LocalVar, error) {
	r := &reader{data: data}
	count := r.u2()
	vars := make([]LocalVar, 0, count)
	for i := uint16(0); i < count && r.err == nil; i++ {
		vars = append(vars, LocalVar{
			Start:     r.u2(),
			Length:    r.u2(),
			NameIndex: r.u2(),
			DescIndex: r.u2(),
			Slot:      r.u2(),
		})
	}
	if r.err != nil {
		return nil, fmt.Errorf("parsing local variable table: %w", r.err)
	}
	return vars, nil
}

// EncodeLocalVars re-serializes a local variable (type) table payload.
func EncodeLocalVars(vars []LocalVar) []byte {
	w := &writer{}
	w.u2(uint16(len(vars)))
	for _, v := range vars {
		w.u2(v.Start)
		w.u2(v.Length)
		w.u2(v.NameIndex)
		w.u2(v.DescIndex)
		w.u2(v.Slot)
	}
	return w.buf
}

// MethodParameter is one MethodParameters row. NameIndex 0 means the
// parameter has no name.
type MethodParameter struct {
	NameIndex uint16
	Access    uint16
}

// ParseMethodParameters decodes a MethodParameters payload.
func ParseMethodParameters(data []byte) ([]MethodParameter, error) {
	r := &reader{data: data}
	count := r.u1()
	params := make([]MethodParameter, 0, count)
	for i := byte(0); i < count && r.err == nil; i++ {
		params = append(params, MethodParameter{
			NameIndex: r.u2(),
			Access:    r.u2(),
		})
	}
	if r.err != nil {
		return nil, fmt.Errorf("parsing MethodParameters: %w", r.err)
	}
	return params, nil
}

// EncodeMethodParameters re-serializes a MethodParameters payload.
func EncodeMethodParameters(params []MethodParameter) []byte {
	w := &writer{}
	w.u1(byte(len(params)))
	for _, p := range params {
		w.u2(p.NameIndex)
		w.u2(p.Access)
	}
	return w.buf
}

// InnerClass is one InnerClasses row.
type InnerClass struct {
	InnerIndex uint16 // Class constant of the inner class
	OuterIndex uint16 // Class constant of the outer class, 0 if none
	NameIndex  uint16 // Utf8 simple name, 0 for anonymous
	Access     uint16
}

// ParseInnerClasses decodes an InnerClasses payload.
func ParseInnerClasses(data []byte) ([]InnerClass, error) {
	r := &reader{data: data}
	count := r.u2()
	inner := make([]InnerClass, 0, count)
	for i := uint16(0); i < count && r.err == nil; i++ {
		inner = append(inner, InnerClass{
			InnerIndex: r.u2(),
			OuterIndex: r.u2(),
			NameIndex:  r.u2(),
			Access:     r.u2(),
		})
	}
	if r.err != nil {
		return nil, fmt.Errorf("parsing InnerClasses: %w", r.err)
	}
	return inner, nil
}

// EncodeInnerClasses re-serializes an InnerClasses payload.
func EncodeInnerClasses(inner []InnerClass) []byte {
	w := &writer{}
	w.u2(uint16(len(inner)))
	for _, ic := range inner {
		w.u2(ic.InnerIndex)
		w.u2(ic.OuterIndex)
		w.u2(ic.NameIndex)
		w.u2(ic.Access)
	}
	return w.buf
}

// SplitParameterAnnotations slices a Runtime(In)VisibleParameterAnnotations
// payload into one raw chunk per parameter (each chunk starts with its
// own u2 annotation count). Splitting requires walking the annotation
// structures, since they are variable-length.
func SplitParameterAnnotations(data []byte) ([][]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("parsing parameter annotations: empty payload")
	}
	count := int(data[0])
	pos := 1
	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := pos
		if pos+2 > len(data) {
			return nil, fmt.Errorf("parsing parameter annotations: truncated at %d", pos)
		}
		numAnnotations := int(binary.BigEndian.Uint16(data[pos:]))
		pos += 2
		for j := 0; j < numAnnotations; j++ {
			next, err := skipAnnotation(data, pos)
			if err != nil {
				return nil, err
			}
			pos = next
		}
		chunks = append(chunks, data[start:pos])
	}
	if pos != len(data) {
		return nil, fmt.Errorf("parsing parameter annotations: %d trailing bytes", len(data)-pos)
	}
	return chunks, nil
}

// JoinParameterAnnotations is the inverse of SplitParameterAnnotations.
func JoinParameterAnnotations(chunks [][]byte) []byte {
	out := []byte{byte(len(chunks))}
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}

func skipAnnotation(data []byte, pos int) (int, error) {
	if pos+4 > len(data) {
		return 0, fmt.Errorf("parsing annotation: truncated at %d", pos)
	}
	numPairs := int(binary.BigEndian.Uint16(data[pos+2:]))
	pos += 4
	for i := 0; i < numPairs; i++ {
		pos += 2 // element name index
		next, err := skipElementValue(data, pos)
		if err != nil {
			return 0, err
		}
		pos = next
	}
	return pos, nil
}

func skipElementValue(data []byte, pos int) (int, error) {
	if pos >= len(data) {
		return 0, fmt.Errorf("parsing element value: truncated at %d", pos)
	}
	tag := data[pos]
	pos++
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		return pos + 2, nil
	case 'e':
		return pos + 4, nil
	case '@':
		return skipAnnotation(data, pos)
	case '[':
		if pos+2 > len(data) {
			return 0, fmt.Errorf("parsing element value: truncated at %d", pos)
		}
		n := int(binary.BigEndian.Uint16(data[pos:]))
		pos += 2
		for i := 0; i < n; i++ {
			next, err := skipElementValue(data, pos)
			if err != nil {
				return 0, err
			}
			pos = next
		}
		return pos, nil
	default:
		return 0, fmt.Errorf("parsing element value: unknown tag %q at %d", tag, pos-1)
	}
}
