package classfile

import "strings"

// ParamCount counts the declared parameters of a method descriptor.
// Longs and doubles count once; this is the parameter count, not the
// local slot count.
func ParamCount(desc string) int {
	if !strings.HasPrefix(desc, "(") {
		return 0
	}
	count := 0
	i := 1
	for i < len(desc) && desc[i] != ')' {
		for i < len(desc) && desc[i] == '[' {
			i++
		}
		if i >= len(desc) {
			break
		}
		if desc[i] == 'L' {
			end := strings.IndexByte(desc[i:], ';')
			if end < 0 {
				break
			}
			i += end + 1
		} else {
			i++
		}
		count++
	}
	return count
}

// MapDescriptor rewrites every class reference in a field or method
// descriptor through mapType (internal name to internal name). It also
// handles the generic-signature grammar well enough for remapping:
// a class reference there ends at ';', '<' or '.'.
func MapDescriptor(desc string, mapType func(string) string) string {
	var out strings.Builder
	i := 0
	for i < len(desc) {
		ch := desc[i]
		if ch == 'T' {
			// Type-variable reference (TName;). Copied verbatim so a
			// variable name starting with an uppercase L is never
			// scanned as a class reference.
			if end := typeVarEnd(desc, i); end > 0 {
				out.WriteString(desc[i:end])
				i = end
				continue
			}
		}
		if ch != 'L' {
			out.WriteByte(ch)
			i++
			continue
		}
		end := i + 1
		for end < len(desc) && desc[end] != ';' && desc[end] != '<' && desc[end] != '.' {
			end++
		}
		if end == len(desc) {
			// Not a class reference after all; emit as-is.
			out.WriteString(desc[i:])
			break
		}
		out.WriteByte('L')
		out.WriteString(mapType(desc[i+1 : end]))
		i = end
	}
	return out.String()
}

// typeVarEnd returns the index just past a TName; reference starting
// at i, or 0 when desc[i:] is something else, such as a formal type
// parameter name followed by its bound (Thing:Ljava/lang/Object;).
func typeVarEnd(desc string, i int) int {
	for j := i + 1; j < len(desc); j++ {
		switch desc[j] {
		case ';':
			if j == i+1 {
				return 0
			}
			return j + 1
		case ':', '.', '/', '<', '>', '(', ')', '[':
			return 0
		}
	}
	return 0
}
