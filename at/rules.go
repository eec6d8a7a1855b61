package at

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ManiacGamer156/architectury-loom/classfile"
	"github.com/ManiacGamer156/architectury-loom/mapping"
)

type finalAction int

const (
	keepFinal finalAction = iota
	addFinal
	removeFinal
)

// rule is one parsed directive. A rule with an empty member targets
// the class itself; member "*" targets all fields, "*" with a method
// marker all methods.
type rule struct {
	access uint16 // target visibility flag, 0 for package-private
	rank   int
	final  finalAction
	member string // "" for class rules
	desc   string // method descriptor, "" for field rules
	method bool
}

type ruleSet map[string][]rule

func (rs ruleSet) forEntry(entryName string) []rule {
	if !strings.HasSuffix(entryName, ".class") {
		return nil
	}
	return rs[strings.TrimSuffix(entryName, ".class")]
}

func (rs ruleSet) size() int {
	n := 0
	for _, rules := range rs {
		n += len(rules)
	}
	return n
}

func parseConfigs(paths []string) (ruleSet, error) {
	rs := make(ruleSet)
	for _, path := range paths {
		if err := parseConfig(path, rs); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func parseConfig(path string, rs ruleSet) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 3 {
			return fmt.Errorf("%s:%d: too many fields in directive", path, lineNo)
		}

		r, err := parseModifier(fields[0])
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if len(fields) < 2 {
			return fmt.Errorf("%s:%d: directive names no class", path, lineNo)
		}
		className := mapping.InternalClassName(fields[1])

		if len(fields) == 3 {
			member := fields[2]
			if open := strings.IndexByte(member, '('); open >= 0 {
				r.method = true
				r.member = member[:open]
				r.desc = member[open:]
			} else {
				r.member = member
			}
		}
		rs[className] = append(rs[className], r)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func parseModifier(s string) (rule, error) {
	r := rule{}
	switch {
	case strings.HasSuffix(s, "+f"):
		r.final = addFinal
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "-f"):
		r.final = removeFinal
		s = s[:len(s)-2]
	}
	switch s {
	case "public":
		r.access, r.rank = classfile.AccPublic, 3
	case "protected":
		r.access, r.rank = classfile.AccProtected, 2
	case "default":
		r.access, r.rank = 0, 1
	case "private":
		r.access, r.rank = classfile.AccPrivate, 0
	default:
		return r, fmt.Errorf("unknown access modifier %q", s)
	}
	return r, nil
}

func visibilityRank(access uint16) int {
	switch {
	case access&classfile.AccPublic != 0:
		return 3
	case access&classfile.AccProtected != 0:
		return 2
	case access&classfile.AccPrivate != 0:
		return 0
	default:
		return 1
	}
}

// widen applies a rule to an access flag word, widening visibility and
// adjusting the final bit. Narrower target visibility is ignored.
func widen(access uint16, r rule) uint16 {
	if r.rank > visibilityRank(access) {
		access &^= classfile.AccPublic | classfile.AccProtected | classfile.AccPrivate
		access |= r.access
	}
	switch r.final {
	case addFinal:
		access |= classfile.AccFinal
	case removeFinal:
		access &^= classfile.AccFinal
	}
	return access
}

// applyRules rewrites one class file with its directives, returning
// the new bytes and how many directives hit something. InnerClasses
// rows are widened using whatever class rules exist for the classes
// they reference.
func applyRules(data []byte, rules []rule, rs ruleSet) ([]byte, int, error) {
	c, err := classfile.Parse(data)
	if err != nil {
		return nil, 0, err
	}

	applied := 0
	for _, r := range rules {
		switch {
		case r.member == "":
			c.Access = widen(c.Access, r)
			applied++
		case r.method:
			for mi := range c.Methods {
				m := &c.Methods[mi]
				if !memberMatches(r, c.Pool.Utf8(m.NameIndex), c.Pool.Utf8(m.DescIndex)) {
					continue
				}
				m.Access = widen(m.Access, r)
				applied++
			}
		default:
			for fi := range c.Fields {
				f := &c.Fields[fi]
				if r.member != "*" && c.Pool.Utf8(f.NameIndex) != r.member {
					continue
				}
				f.Access = widen(f.Access, r)
				applied++
			}
		}
	}

	if err := widenInnerClassRows(c, rs); err != nil {
		return nil, 0, err
	}
	return c.Encode(), applied, nil
}

func memberMatches(r rule, name, desc string) bool {
	if r.member == "*" {
		return true
	}
	return name == r.member && desc == r.desc
}

// widenInnerClassRows keeps InnerClasses access flags consistent with
// class-level directives; the JVM checks nested access against the
// row, not just the nested class file.
func widenInnerClassRows(c *classfile.Class, rs ruleSet) error {
	for ai := range c.Attrs {
		attr := &c.Attrs[ai]
		if c.AttrName(*attr) != classfile.AttrInnerClasses {
			continue
		}
		rows, err := classfile.ParseInnerClasses(attr.Data)
		if err != nil {
			return err
		}
		changed := false
		for i := range rows {
			for _, r := range rs[c.Pool.ClassName(rows[i].InnerIndex)] {
				if r.member != "" {
					continue
				}
				widened := widen(rows[i].Access, r)
				if widened != rows[i].Access {
					rows[i].Access = widened
					changed = true
				}
			}
		}
		if changed {
			attr.Data = classfile.EncodeInnerClasses(rows)
		}
	}
	return nil
}
