// Package mapping models two-namespace symbol mapping tables and the
// readers that populate them from mapping files.
package mapping

// Processor receives name mappings as a reader pumps through a mapping
// file. The mappings map the source namespace to the target namespace.
type Processor interface {
	// ProcessClassMapping processes one class name mapping.
	//
	// Returns whether the processor is interested in receiving the
	// class's member mappings.
	ProcessClassMapping(className string, newClassName string) bool

	// ProcessFieldMapping processes one field name mapping. The
	// descriptor is in the source namespace and may be empty for
	// formats that do not record field descriptors.
	ProcessFieldMapping(owner string, fieldName string, fieldDesc string, newFieldName string)

	// ProcessMethodMapping processes one method name mapping. The
	// descriptor is in the source namespace.
	ProcessMethodMapping(owner string, methodName string, methodDesc string, newMethodName string)
}

type memberKey struct {
	name string
	desc string
}

// Tree is an in-memory mapping table between two named namespaces.
//
// Member lookups key on (name, descriptor) without the owning class:
// intermediate-namespace member names are globally unique, which is
// what makes owner-free lookup valid. Tree implements Processor so a
// reader can pump straight into it.
type Tree struct {
	// From and To name the source and target namespaces, e.g.
	// "official" -> "srg".
	From string
	To   string

	classes map[string]string
	fields  map[memberKey]string
	methods map[memberKey]string
}

// NewTree returns an empty tree between the two named namespaces.
func NewTree(from, to string) *Tree {
	return &Tree{
		From:    from,
		To:      to,
		classes: make(map[string]string),
		fields:  make(map[memberKey]string),
		methods: make(map[memberKey]string),
	}
}

func (t *Tree) ProcessClassMapping(className string, newClassName string) bool {
	t.classes[className] = newClassName
	return true
}

func (t *Tree) ProcessFieldMapping(owner string, fieldName string, fieldDesc string, newFieldName string) {
	t.fields[memberKey{fieldName, fieldDesc}] = newFieldName
	if fieldDesc != "" {
		// Also record a descriptor-less entry so lookups that only
		// know the field name still resolve.
		if _, exists := t.fields[memberKey{fieldName, ""}]; !exists {
			t.fields[memberKey{fieldName, ""}] = newFieldName
		}
	}
}

func (t *Tree) ProcessMethodMapping(owner string, methodName string, methodDesc string, newMethodName string) {
	t.methods[memberKey{methodName, methodDesc}] = newMethodName
}

// MapClass looks up a class's internal name in the source namespace.
func (t *Tree) MapClass(name string) (string, bool) {
	mapped, ok := t.classes[name]
	return mapped, ok
}

// ClassOrDefault maps a class name, returning the input unchanged when
// the tree has no mapping for it.
func (t *Tree) ClassOrDefault(name string) string {
	if mapped, ok := t.classes[name]; ok {
		return mapped
	}
	return name
}

// MapField looks up a field name, trying the exact descriptor first
// and falling back to a descriptor-less entry.
func (t *Tree) MapField(name, desc string) (string, bool) {
	if mapped, ok := t.fields[memberKey{name, desc}]; ok {
		return mapped, true
	}
	mapped, ok := t.fields[memberKey{name, ""}]
	return mapped, ok
}

// MapMethod looks up a method name by name and descriptor.
func (t *Tree) MapMethod(name, desc string) (string, bool) {
	if mapped, ok := t.methods[memberKey{name, desc}]; ok {
		return mapped, true
	}
	mapped, ok := t.methods[memberKey{name, ""}]
	return mapped, ok
}

// ClassCount returns the number of class mappings in the tree.
func (t *Tree) ClassCount() int {
	return len(t.classes)
}
