package classfile

import (
	"encoding/binary"
	"fmt"
)

// RemapAnnotationTypes rewrites every type-descriptor pool index in a
// Runtime(In)VisibleAnnotations payload through mapIndex and returns
// the patched copy. Indexes touched are annotation type_index, enum
// element type_name_index and class element class_info_index; constant
// and string values keep their indexes.
func RemapAnnotationTypes(data []byte, mapIndex func(uint16) uint16) ([]byte, error) {
	out := append([]byte(nil), data...)
	if len(out) < 2 {
		return nil, fmt.Errorf("annotations payload truncated")
	}
	count := int(binary.BigEndian.Uint16(out))
	pos := 2
	var err error
	for i := 0; i < count; i++ {
		pos, err = remapAnnotation(out, pos, mapIndex)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RemapParameterAnnotationTypes is RemapAnnotationTypes for the
// per-parameter annotation payload layout.
func RemapParameterAnnotationTypes(data []byte, mapIndex func(uint16) uint16) ([]byte, error) {
	out := append([]byte(nil), data...)
	if len(out) < 1 {
		return nil, fmt.Errorf("parameter annotations payload truncated")
	}
	paramCount := int(out[0])
	pos := 1
	var err error
	for p := 0; p < paramCount; p++ {
		if pos+2 > len(out) {
			return nil, fmt.Errorf("parameter annotations payload truncated")
		}
		count := int(binary.BigEndian.Uint16(out[pos:]))
		pos += 2
		for i := 0; i < count; i++ {
			pos, err = remapAnnotation(out, pos, mapIndex)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func patchU2(data []byte, pos int, mapIndex func(uint16) uint16) error {
	if pos+2 > len(data) {
		return fmt.Errorf("annotation truncated at offset %d", pos)
	}
	binary.BigEndian.PutUint16(data[pos:], mapIndex(binary.BigEndian.Uint16(data[pos:])))
	return nil
}

func remapAnnotation(data []byte, pos int, mapIndex func(uint16) uint16) (int, error) {
	if err := patchU2(data, pos, mapIndex); err != nil {
		return 0, err
	}
	if pos+4 > len(data) {
		return 0, fmt.Errorf("annotation truncated at offset %d", pos)
	}
	pairs := int(binary.BigEndian.Uint16(data[pos+2:]))
	pos += 4
	var err error
	for i := 0; i < pairs; i++ {
		pos += 2 // element name index, not a type
		pos, err = remapElementValue(data, pos, mapIndex)
		if err != nil {
			return 0, err
		}
	}
	return pos, nil
}

func remapElementValue(data []byte, pos int, mapIndex func(uint16) uint16) (int, error) {
	if pos >= len(data) {
		return 0, fmt.Errorf("element value truncated at offset %d", pos)
	}
	tag := data[pos]
	pos++
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		return pos + 2, nil
	case 'e':
		if err := patchU2(data, pos, mapIndex); err != nil {
			return 0, err
		}
		return pos + 4, nil
	case 'c':
		if err := patchU2(data, pos, mapIndex); err != nil {
			return 0, err
		}
		return pos + 2, nil
	case '@':
		return remapAnnotation(data, pos, mapIndex)
	case '[':
		if pos+2 > len(data) {
			return 0, fmt.Errorf("element value truncated at offset %d", pos)
		}
		count := int(binary.BigEndian.Uint16(data[pos:]))
		pos += 2
		var err error
		for i := 0; i < count; i++ {
			pos, err = remapElementValue(data, pos, mapIndex)
			if err != nil {
				return 0, err
			}
		}
		return pos, nil
	default:
		return 0, fmt.Errorf("unknown element value tag %q", tag)
	}
}
