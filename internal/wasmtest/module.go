// Package wasmtest encodes small WebAssembly binaries for tests.
package wasmtest

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// Opcodes used by test guests.
const (
	OpUnreachable byte = 0x00
	OpCall        byte = 0x10
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpDrop        byte = 0x1a
	OpLocalGet    byte = 0x20
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Const    byte = 0x41
	OpI32Eqz      byte = 0x45
	OpI32Add      byte = 0x6a
	OpI32Mul      byte = 0x6c
	OpEnd         byte = 0x0b
)

type funcType struct {
	params, results []byte
}

type importEntry struct {
	module, name string
	kind         byte
	typeIdx      uint32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	offset int32
	data   []byte
}

// Module builds a module one section at a time. Imports must be added before functions.
type Module struct {
	types     []funcType
	imports   []importEntry
	funcs     []uint32
	bodies    [][]byte
	globals   []int32
	exports   []export
	data      []dataSegment
	memory    bool
	funcCount uint32
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

// Type returns the index of the function type, adding it if needed.
func (m *Module) Type(params, results []byte) uint32 {
	for i, t := range m.types {
		if string(t.params) == string(params) && string(t.results) == string(results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})

	return uint32(len(m.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []byte) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	m.imports = append(m.imports, importEntry{module: module, name: name, typeIdx: m.Type(params, results)})
	m.funcCount++

	return m.funcCount - 1
}

// ImportMemory adds a memory import with a one page minimum.
func (m *Module) ImportMemory(module, name string) {
	m.imports = append(m.imports, importEntry{module: module, name: name, kind: 0x02})
}

// Func adds a function with body (without the trailing end) and returns its index.
func (m *Module) Func(params, results []byte, body ...byte) uint32 {
	m.funcs = append(m.funcs, m.Type(params, results))
	m.bodies = append(m.bodies, append(append([]byte{}, body...), OpEnd))
	m.funcCount++

	return m.funcCount - 1
}

// Export exports function idx under name.
func (m *Module) Export(name string, idx uint32) *Module {
	m.exports = append(m.exports, export{name: name, kind: 0x00, idx: idx})
	return m
}

// Memory declares one page of memory exported as "memory".
func (m *Module) Memory() *Module {
	m.memory = true
	m.exports = append(m.exports, export{name: "memory", kind: 0x02, idx: 0})

	return m
}

// Global adds a mutable i32 global and returns its index.
func (m *Module) Global(init int32) uint32 {
	m.globals = append(m.globals, init)
	return uint32(len(m.globals) - 1)
}

// Data places data at offset in memory.
func (m *Module) Data(offset int32, data []byte) *Module {
	m.data = append(m.data, dataSegment{offset: offset, data: data})
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.types)))
		for _, t := range m.types {
			s = append(s, 0x60)
			s = appendBytes(s, t.params)
			s = appendBytes(s, t.results)
		}
		out = appendSection(out, 1, s)
	}

	if len(m.imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = appendBytes(s, []byte(imp.module))
			s = appendBytes(s, []byte(imp.name))
			s = append(s, imp.kind)
			if imp.kind == 0x02 {
				s = append(s, 0x00, 0x01)
			} else {
				s = appendU32(s, imp.typeIdx)
			}
		}
		out = appendSection(out, 2, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, idx := range m.funcs {
			s = appendU32(s, idx)
		}
		out = appendSection(out, 3, s)
	}

	if m.memory {
		out = appendSection(out, 5, []byte{0x01, 0x00, 0x01})
	}

	if len(m.globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.globals)))
		for _, g := range m.globals {
			s = append(s, I32, 0x01, OpI32Const)
			s = appendS32(s, g)
			s = append(s, OpEnd)
		}
		out = appendSection(out, 6, s)
	}

	if len(m.exports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.exports)))
		for _, e := range m.exports {
			s = appendBytes(s, []byte(e.name))
			s = append(s, e.kind)
			s = appendU32(s, e.idx)
		}
		out = appendSection(out, 7, s)
	}

	if len(m.bodies) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.bodies)))
		for _, body := range m.bodies {
			// no locals.
			s = appendBytes(s, append([]byte{0x00}, body...))
		}
		out = appendSection(out, 10, s)
	}

	if len(m.data) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.data)))
		for _, d := range m.data {
			s = append(s, 0x00, OpI32Const)
			s = appendS32(s, d.offset)
			s = append(s, OpEnd)
			s = appendBytes(s, d.data)
		}
		out = appendSection(out, 11, s)
	}

	return out
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	return appendS32([]byte{OpI32Const}, v)
}

// Call encodes call idx.
func Call(idx uint32) []byte {
	return appendU32([]byte{OpCall}, idx)
}

// LocalGet encodes local.get idx.
func LocalGet(idx uint32) []byte {
	return appendU32([]byte{OpLocalGet}, idx)
}

// GlobalGet encodes global.get idx.
func GlobalGet(idx uint32) []byte {
	return appendU32([]byte{OpGlobalGet}, idx)
}

// GlobalSet encodes global.set idx.
func GlobalSet(idx uint32) []byte {
	return appendU32([]byte{OpGlobalSet}, idx)
}

// IfI32 encodes if with an i32 result; close it with Else and End.
func IfI32() []byte {
	return []byte{OpIf, I32}
}

// Else encodes else.
func Else() []byte {
	return []byte{OpElse}
}

// End encodes end.
func End() []byte {
	return []byte{OpEnd}
}

// Code concatenates instruction encodings.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

func appendSection(out []byte, id byte, contents []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(contents)))

	return append(out, contents...)
}

func appendBytes(out, b []byte) []byte {
	out = appendU32(out, uint32(len(b)))
	return append(out, b...)
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}

		return append(out, b)
	}
}

func appendS32(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
