// Package classfile is a minimal JVM class-file codec: enough structure
// to rename symbols, patch access flags and rewrite debug metadata,
// with everything else carried as raw bytes. An unmodified class
// re-encodes byte-identically, which is what makes "only rewrite when
// changed" checks on jar entries meaningful.
package classfile

import (
	"encoding/binary"
	"fmt"
)

// Constant pool tags.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Access flags (the subset the transforms care about).
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccInterface = 0x0200
	AccSynthetic = 0x1000
	AccEnum      = 0x4000
)

// Constant is one constant pool entry. The second slot of a long or
// double entry is represented by a zero-tag placeholder so pool
// indexes stay 1:1 with the file.
type Constant struct {
	Tag  byte
	Utf8 string // TagUtf8: raw modified-UTF-8 bytes, kept undecoded
	Ref1 uint16 // first index operand
	Ref2 uint16 // second index operand
	Kind byte   // TagMethodHandle reference kind
	Num  []byte // numeric payload for int/float (4 bytes), long/double (8 bytes)
}

// Pool is the constant pool; index 0 is unused, as in the file format.
type Pool []Constant

// Utf8 returns the string behind a Utf8 constant, or "" for index 0.
func (p Pool) Utf8(i uint16) string {
	if i == 0 || int(i) >= len(p) {
		return ""
	}
	return p[i].Utf8
}

// ClassName resolves a Class constant to its internal name.
func (p Pool) ClassName(i uint16) string {
	if i == 0 || int(i) >= len(p) {
		return ""
	}
	return p.Utf8(p[i].Ref1)
}

// Attribute is a raw attribute: a name index and an opaque payload.
type Attribute struct {
	NameIndex uint16
	Data      []byte
}

// Member is a field or method.
type Member struct {
	Access    uint16
	NameIndex uint16
	DescIndex uint16
	Attrs     []Attribute
}

// Class is a parsed class file.
type Class struct {
	Minor      uint16
	Major      uint16
	Pool       Pool
	Access     uint16
	ThisClass  uint16
	SuperClass uint16
	Interfaces []uint16
	Fields     []Member
	Methods    []Member
	Attrs      []Attribute
}

// Name returns this class's internal name (e.g. "net/minecraft/Foo").
func (c *Class) Name() string {
	return c.Pool.ClassName(c.ThisClass)
}

// AttrName resolves an attribute's name through the pool.
func (c *Class) AttrName(a Attribute) string {
	return c.Pool.Utf8(a.NameIndex)
}

// AddUtf8 appends a Utf8 constant and returns its index. It does not
// dedupe; callers that care keep their own index map.
func (c *Class) AddUtf8(s string) uint16 {
	c.Pool = append(c.Pool, Constant{Tag: TagUtf8, Utf8: s})
	return uint16(len(c.Pool) - 1)
}

// AddClassConstant appends a Class constant (and its name) and returns
// the class constant's index.
func (c *Class) AddClassConstant(name string) uint16 {
	nameIdx := c.AddUtf8(name)
	c.Pool = append(c.Pool, Constant{Tag: TagClass, Ref1: nameIdx})
	return uint16(len(c.Pool) - 1)
}

// New builds a bare public class with the given internal name and
// superclass, ready for members and attributes to be added.
func New(name, superName string) *Class {
	c := &Class{
		Major:  52, // Java 8
		Pool:   Pool{{}},
		Access: AccPublic,
	}
	c.ThisClass = c.AddClassConstant(name)
	c.SuperClass = c.AddClassConstant(superName)
	return c
}

// AddMethod appends a method and returns a pointer into the class's
// method slice, valid until the next AddMethod call.
func (c *Class) AddMethod(access uint16, name, desc string) *Member {
	c.Methods = append(c.Methods, Member{
		Access:    access,
		NameIndex: c.AddUtf8(name),
		DescIndex: c.AddUtf8(desc),
	})
	return &c.Methods[len(c.Methods)-1]
}

// AddField appends a field, analogous to AddMethod.
func (c *Class) AddField(access uint16, name, desc string) *Member {
	c.Fields = append(c.Fields, Member{
		Access:    access,
		NameIndex: c.AddUtf8(name),
		DescIndex: c.AddUtf8(desc),
	})
	return &c.Fields[len(c.Fields)-1]
}

// NewAttr builds an attribute with the given name and payload.
func (c *Class) NewAttr(name string, data []byte) Attribute {
	return Attribute{NameIndex: c.AddUtf8(name), Data: data}
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) u1() byte {
	if r.err != nil {
		return 0
	}
	if r.pos+1 > len(r.data) {
		r.fail("classfile: truncated at offset %d", r.pos)
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) u2() uint16 {
	if r.err != nil {
		return 0
	}
	if r.pos+2 > len(r.data) {
		r.fail("classfile: truncated at offset %d", r.pos)
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.data) {
		r.fail("classfile: truncated at offset %d", r.pos)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.fail("classfile: truncated at offset %d", r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Parse decodes a class file.
func Parse(data []byte) (*Class, error) {
	r := &reader{data: data}
	if magic := r.u4(); r.err == nil && magic != 0xCAFEBABE {
		return nil, fmt.Errorf("classfile: bad magic 0x%08X", magic)
	}

	c := &Class{}
	c.Minor = r.u2()
	c.Major = r.u2()

	count := r.u2()
	c.Pool = make(Pool, 1, count)
	for i := uint16(1); i < count && r.err == nil; i++ {
		tag := r.u1()
		entry := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			entry.Utf8 = string(r.bytes(int(r.u2())))
		case TagInteger, TagFloat:
			entry.Num = r.bytes(4)
		case TagLong, TagDouble:
			entry.Num = r.bytes(8)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			entry.Ref1 = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			entry.Ref1 = r.u2()
			entry.Ref2 = r.u2()
		case TagMethodHandle:
			entry.Kind = r.u1()
			entry.Ref1 = r.u2()
		default:
			r.fail("classfile: unknown constant tag %d at index %d", tag, i)
		}
		c.Pool = append(c.Pool, entry)
		if tag == TagLong || tag == TagDouble {
			// Longs and doubles take two pool slots.
			c.Pool = append(c.Pool, Constant{})
			i++
		}
	}

	c.Access = r.u2()
	c.ThisClass = r.u2()
	c.SuperClass = r.u2()

	ifaceCount := r.u2()
	c.Interfaces = make([]uint16, 0, ifaceCount)
	for i := uint16(0); i < ifaceCount && r.err == nil; i++ {
		c.Interfaces = append(c.Interfaces, r.u2())
	}

	c.Fields = r.members()
	c.Methods = r.members()
	c.Attrs = r.attributes()

	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("classfile: %d trailing bytes", len(data)-r.pos)
	}
	return c, nil
}

func (r *reader) members() []Member {
	count := r.u2()
	members := make([]Member, 0, count)
	for i := uint16(0); i < count && r.err == nil; i++ {
		m := Member{
			Access:    r.u2(),
			NameIndex: r.u2(),
			DescIndex: r.u2(),
		}
		m.Attrs = r.attributes()
		members = append(members, m)
	}
	return members
}

func (r *reader) attributes() []Attribute {
	count := r.u2()
	attrs := make([]Attribute, 0, count)
	for i := uint16(0); i < count && r.err == nil; i++ {
		a := Attribute{NameIndex: r.u2()}
		a.Data = r.bytes(int(r.u4()))
		attrs = append(attrs, a)
	}
	return attrs
}

type writer struct {
	buf []byte
}

func (w *writer) u1(v byte)      { w.buf = append(w.buf, v) }
func (w *writer) u2(v uint16)    { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u4(v uint32)    { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) raw(b []byte)   { w.buf = append(w.buf, b...) }

// Encode re-serializes the class.
func (c *Class) Encode() []byte {
	w := &writer{buf: make([]byte, 0, 1024)}
	w.u4(0xCAFEBABE)
	w.u2(c.Minor)
	w.u2(c.Major)

	w.u2(uint16(len(c.Pool)))
	for i := 1; i < len(c.Pool); i++ {
		entry := c.Pool[i]
		switch entry.Tag {
		case 0:
			// Second slot of a long/double; nothing on the wire.
			continue
		case TagUtf8:
			w.u1(TagUtf8)
			w.u2(uint16(len(entry.Utf8)))
			w.raw([]byte(entry.Utf8))
		case TagInteger, TagFloat, TagLong, TagDouble:
			w.u1(entry.Tag)
			w.raw(entry.Num)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u1(entry.Tag)
			w.u2(entry.Ref1)
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			w.u1(entry.Tag)
			w.u2(entry.Ref1)
			w.u2(entry.Ref2)
		case TagMethodHandle:
			w.u1(TagMethodHandle)
			w.u1(entry.Kind)
			w.u2(entry.Ref1)
		}
	}

	w.u2(c.Access)
	w.u2(c.ThisClass)
	w.u2(c.SuperClass)

	w.u2(uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		w.u2(i)
	}

	w.writeMembers(c.Fields)
	w.writeMembers(c.Methods)
	w.writeAttributes(c.Attrs)
	return w.buf
}

func (w *writer) writeMembers(members []Member) {
	w.u2(uint16(len(members)))
	for _, m := range members {
		w.u2(m.Access)
		w.u2(m.NameIndex)
		w.u2(m.DescIndex)
		w.writeAttributes(m.Attrs)
	}
}

func (w *writer) writeAttributes(attrs []Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(a.NameIndex)
		w.u4(uint32(len(a.Data)))
		w.raw(a.Data)
	}
}
