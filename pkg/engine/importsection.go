package engine

import (
	"errors"
	"fmt"
)

// Extern kinds of the import section.
const (
	externFunc   = 0x00
	externTable  = 0x01
	externMemory = 0x02
	externGlobal = 0x03
	externTag    = 0x04
)

const importSectionID = 2

var errMalformedImports = errors.New("malformed import section")

// importDecl is one entry of a module's import section.
type importDecl struct {
	namespace string
	name      string
	kind      ImportKind
}

// importSection returns the module's imports of every kind in declaration order. The
// module has already been validated by the compiler; only the import section is read.
func importSection(module []byte) ([]importDecl, error) {
	if len(module) < 8 {
		return nil, errMalformedImports
	}
	r := &sectionReader{b: module, pos: 8}

	for r.err == nil && r.pos < len(r.b) {
		id := r.byte()
		size := int(r.u32())
		if r.err != nil || size > len(r.b)-r.pos {
			return nil, errMalformedImports
		}
		if id != importSectionID {
			r.pos += size
			continue
		}

		count := r.u32()
		decls := make([]importDecl, 0, count)
		for i := uint32(0); i < count && r.err == nil; i++ {
			d := importDecl{namespace: r.name(), name: r.name()}
			switch kind := r.byte(); kind {
			case externFunc:
				d.kind = ImportFunc
				r.u32()
			case externTable:
				d.kind = ImportTable
				r.byte()
				r.limits()
			case externMemory:
				d.kind = ImportMemory
				r.limits()
			case externGlobal:
				d.kind = ImportGlobal
				r.byte()
				r.byte()
			case externTag:
				d.kind = ImportTag
				r.byte()
				r.u32()
			default:
				return nil, fmt.Errorf("%w: import kind 0x%02x", errMalformedImports, kind)
			}
			decls = append(decls, d)
		}
		if r.err != nil {
			return nil, errMalformedImports
		}

		return decls, nil
	}

	if r.err != nil {
		return nil, errMalformedImports
	}

	return nil, nil
}

// sectionReader reads LEB128 encoded values. The first failure sticks in err.
type sectionReader struct {
	b   []byte
	pos int
	err error
}

func (r *sectionReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.b) {
		r.err = errMalformedImports
		return 0
	}
	c := r.b[r.pos]
	r.pos++

	return c
}

func (r *sectionReader) u64() uint64 {
	var v uint64
	for shift := uint(0); shift < 64; shift += 7 {
		c := r.byte()
		if r.err != nil {
			return 0
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v
		}
	}
	r.err = errMalformedImports

	return 0
}

func (r *sectionReader) u32() uint32 {
	return uint32(r.u64())
}

func (r *sectionReader) name() string {
	n := int(r.u32())
	if r.err != nil {
		return ""
	}
	if n > len(r.b)-r.pos {
		r.err = errMalformedImports
		return ""
	}
	s := string(r.b[r.pos : r.pos+n])
	r.pos += n

	return s
}

// limits skips a table or memory limits entry.
func (r *sectionReader) limits() {
	flags := r.byte()
	r.u64()
	if flags&0x01 != 0 {
		r.u64()
	}
}
