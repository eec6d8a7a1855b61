package mapping

import "strings"

// InternalClassName converts "com.example.Foo" to "com/example/Foo".
func InternalClassName(externalClassName string) string {
	return strings.ReplaceAll(externalClassName, ".", "/")
}

// ExternalClassName converts "com/example/Foo" to "com.example.Foo".
func ExternalClassName(internalClassName string) string {
	return strings.ReplaceAll(internalClassName, "/", ".")
}
