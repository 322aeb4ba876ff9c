package engine

import (
	"fmt"
	"slices"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostFunction is one of the nine functions of the waPC host namespace.
type HostFunction int

// The closed set of waPC host functions.
const (
	HostConsoleLog HostFunction = iota + 1
	HostCall
	GuestRequest
	HostResponse
	HostResponseLen
	GuestResponse
	GuestError
	HostError
	HostErrorLen
)

type hostSignature struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

var i32 = api.ValueTypeI32

// hostFunctions is indexed by HostFunction.
var hostFunctions = [...]hostSignature{
	HostConsoleLog:  {wapc.HostConsoleLog, []api.ValueType{i32, i32}, nil},
	HostCall:        {wapc.HostCallFn, []api.ValueType{i32, i32, i32, i32, i32, i32, i32, i32}, []api.ValueType{i32}},
	GuestRequest:    {wapc.GuestRequestFn, []api.ValueType{i32, i32}, nil},
	HostResponse:    {wapc.HostResponseFn, []api.ValueType{i32}, nil},
	HostResponseLen: {wapc.HostResponseLenFn, nil, []api.ValueType{i32}},
	GuestResponse:   {wapc.GuestResponseFn, []api.ValueType{i32, i32}, nil},
	GuestError:      {wapc.GuestErrorFn, []api.ValueType{i32, i32}, nil},
	HostError:       {wapc.HostErrorFn, []api.ValueType{i32}, nil},
	HostErrorLen:    {wapc.HostErrorLenFn, nil, []api.ValueType{i32}},
}

// hostFunctionTable maps import names to host functions.
var hostFunctionTable = func() map[string]HostFunction {
	m := make(map[string]HostFunction, len(hostFunctions)-1)
	for fn := HostConsoleLog; fn <= HostErrorLen; fn++ {
		m[hostFunctions[fn].name] = fn
	}

	return m
}()

// String returns the import name of the host function.
func (f HostFunction) String() string {
	if f < HostConsoleLog || f > HostErrorLen {
		return fmt.Sprintf("HostFunction(%d)", int(f))
	}

	return hostFunctions[f].name
}

// LookupHostFunction returns the host function exported under name.
func LookupHostFunction(name string) (HostFunction, bool) {
	fn, ok := hostFunctionTable[name]
	return fn, ok
}

// ImportKind is the kind of an imported entity.
type ImportKind int

// Import kinds.
const (
	ImportFunc ImportKind = iota
	ImportMemory
	ImportTable
	ImportGlobal
	ImportTag
)

func (k ImportKind) String() string {
	switch k {
	case ImportMemory:
		return "memory"
	case ImportTable:
		return "table"
	case ImportGlobal:
		return "global"
	case ImportTag:
		return "tag"
	default:
		return "func"
	}
}

// Resolution says which provider satisfies an import.
type Resolution int

// Import resolutions.
const (
	ResolutionNone Resolution = iota
	ResolutionHost
	ResolutionWASI
)

func (r Resolution) String() string {
	switch r {
	case ResolutionHost:
		return "host"
	case ResolutionWASI:
		return "wasi"
	default:
		return "none"
	}
}

// Import is one resolved slot of a module's import list.
type Import struct {
	Namespace  string
	Name       string
	Kind       ImportKind
	Resolution Resolution
	// Host is set when Resolution is ResolutionHost.
	Host HostFunction
}

// resolveImports maps the module's imports, in the module's order, to host functions or
// WASI symbols. Imports other than functions take an unresolved slot at their position.
func resolveImports(
	compiled wazero.CompiledModule,
	module []byte,
	wasi map[string]api.Module,
) ([]Import, error) {
	decls, err := importSection(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	funcs := compiled.ImportedFunctions()
	imports := make([]Import, 0, len(decls))
	next := 0

	for _, decl := range decls {
		if decl.kind != ImportFunc {
			imports = append(imports, Import{Namespace: decl.namespace, Name: decl.name, Kind: decl.kind})
			continue
		}
		if next >= len(funcs) {
			return nil, fmt.Errorf("%w: %w", ErrCompile, errMalformedImports)
		}
		def := funcs[next]
		next++

		namespace, name, _ := def.Import()
		imp := Import{Namespace: namespace, Name: name, Kind: ImportFunc}

		switch {
		case namespace == wapc.HostNamespace:
			fn, ok := hostFunctionTable[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownHostFunction, namespace, name)
			}
			sig := hostFunctions[fn]
			if !slices.Equal(def.ParamTypes(), sig.params) ||
				!slices.Equal(def.ResultTypes(), sig.results) {
				return nil, fmt.Errorf("%w: %s.%s", ErrImportSignature, namespace, name)
			}
			imp.Resolution = ResolutionHost
			imp.Host = fn
		case wasi[namespace] != nil:
			if _, ok := wasi[namespace].ExportedFunctionDefinitions()[name]; !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnresolvedImport, namespace, name)
			}
			imp.Resolution = ResolutionWASI
		default:
			return nil, fmt.Errorf("%w: import module `%s`", ErrUnknownNamespace, namespace)
		}

		log.Debug().
			Str("event", "import_resolved").
			Str("namespace", namespace).
			Str("name", name).
			Str("resolution", imp.Resolution.String()).
			Msg("resolved module import")
		imports = append(imports, imp)
	}

	return imports, nil
}
