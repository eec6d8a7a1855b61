package mapping

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ProguardReader parses ProGuard-style mapping files ("original ->
// obfuscated"), the format Mojang publishes its obfuscation logs in.
// Line-number prefixes on method lines are accepted and discarded;
// only the name mappings matter here.
type ProguardReader struct {
	fileReader io.Reader
}

func NewProguardReader(fileReader io.Reader) *ProguardReader {
	return &ProguardReader{fileReader: fileReader}
}

// Pump reads the whole file, feeding every mapping to the processor.
// Class names are converted from external ("com.example.Foo") to
// internal ("com/example/Foo") form, and member types from Java source
// form to JVM descriptors, so processors see the same shapes as with
// the TSRG reader.
func (r *ProguardReader) Pump(processor Processor) error {
	scanner := bufio.NewScanner(r.fileReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		className  string
		interested bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, ":") {
			className, interested = r.processClassLine(line, processor)
		} else if len(className) > 0 && interested {
			if err := r.processMemberLine(className, line, processor); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading proguard mappings: %w", err)
	}
	return nil
}

// processClassLine parses "original.Name -> obf:" and returns the
// original (internal-form) name, or "" when the line does not match.
func (r *ProguardReader) processClassLine(line string, processor Processor) (string, bool) {
	arrowIndex := strings.Index(line, "->")
	if arrowIndex < 0 {
		return "", false
	}
	className := InternalClassName(strings.TrimSpace(line[:arrowIndex]))
	newClassName := InternalClassName(strings.TrimSpace(strings.TrimSuffix(line[arrowIndex+2:], ":")))
	if className == "" || newClassName == "" {
		return "", false
	}
	return className, processor.ProcessClassMapping(className, newClassName)
}

// processMemberLine parses one of
//
//	type name -> newName
//	first:last:type name(args) -> newName
//
// in the context of the current class.
func (r *ProguardReader) processMemberLine(className, line string, processor Processor) error {
	arrowIndex := strings.Index(line, "->")
	if arrowIndex < 0 {
		return fmt.Errorf("malformed proguard member line: %q", line)
	}
	newName := strings.TrimSpace(line[arrowIndex+2:])

	decl := strings.TrimSpace(line[:arrowIndex])
	// Strip the optional "first:last:" line-number prefix.
	if colon := strings.LastIndex(decl, ":"); colon >= 0 {
		decl = decl[colon+1:]
	}

	spaceIndex := strings.Index(decl, " ")
	if spaceIndex < 0 {
		return fmt.Errorf("malformed proguard member line: %q", line)
	}
	memberType := decl[:spaceIndex]
	memberName := strings.TrimSpace(decl[spaceIndex+1:])

	if open := strings.Index(memberName, "("); open >= 0 {
		closeParen := strings.Index(memberName, ")")
		if closeParen < open {
			return fmt.Errorf("malformed proguard member line: %q", line)
		}
		args := memberName[open+1 : closeParen]
		methodName := memberName[:open]
		processor.ProcessMethodMapping(className, methodName, methodDescriptor(args, memberType), newName)
		return nil
	}

	processor.ProcessFieldMapping(className, memberName, typeDescriptor(memberType), newName)
	return nil
}

var primitiveDescriptors = map[string]string{
	"void":    "V",
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
}

// typeDescriptor converts a Java source type ("int", "java.lang.String[]")
// to a JVM descriptor ("I", "[Ljava/lang/String;").
func typeDescriptor(javaType string) string {
	dims := 0
	for strings.HasSuffix(javaType, "[]") {
		javaType = javaType[:len(javaType)-2]
		dims++
	}
	desc, ok := primitiveDescriptors[javaType]
	if !ok {
		desc = "L" + InternalClassName(javaType) + ";"
	}
	return strings.Repeat("[", dims) + desc
}

// methodDescriptor builds a JVM method descriptor from a comma
// separated Java argument list and return type.
func methodDescriptor(args, returnType string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	if strings.TrimSpace(args) != "" {
		for _, arg := range strings.Split(args, ",") {
			sb.WriteString(typeDescriptor(strings.TrimSpace(arg)))
		}
	}
	sb.WriteByte(')')
	sb.WriteString(typeDescriptor(returnType))
	return sb.String()
}
