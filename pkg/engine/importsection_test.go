package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func wasmModule(sections ...byte) []byte {
	return append(append([]byte{}, wasmHeader...), sections...)
}

func TestImportSection(t *testing.T) {
	t.Parallel()

	mod := wasmModule(
		// type section: () -> ().
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		// import section: a.t table, a.g global, a.f func.
		0x02, 0x16, 0x03,
		0x01, 'a', 0x01, 't', externTable, 0x70, 0x00, 0x01,
		0x01, 'a', 0x01, 'g', externGlobal, 0x7f, 0x00,
		0x01, 'a', 0x01, 'f', externFunc, 0x00,
	)

	decls, err := importSection(mod)
	require.NoError(t, err)
	assert.Equal(t, []importDecl{
		{namespace: "a", name: "t", kind: ImportTable},
		{namespace: "a", name: "g", kind: ImportGlobal},
		{namespace: "a", name: "f", kind: ImportFunc},
	}, decls)
}

func TestImportSectionMalformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		module []byte
	}{
		{name: "short header", module: []byte{0x00, 0x61}},
		{name: "section past end", module: wasmModule(0x02, 0x05, 0x01, 0x01)},
		{name: "truncated name", module: wasmModule(0x02, 0x03, 0x01, 0x05, 'a')},
		{name: "unknown kind", module: wasmModule(0x02, 0x06, 0x01, 0x01, 'a', 0x01, 'b', 0x09)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := importSection(tc.module)
			require.ErrorIs(t, err, errMalformedImports)
		})
	}
}

func TestImportSectionAbsent(t *testing.T) {
	t.Parallel()

	decls, err := importSection(wasmModule(0x01, 0x04, 0x01, 0x60, 0x00, 0x00))
	require.NoError(t, err)
	assert.Empty(t, decls)
}
