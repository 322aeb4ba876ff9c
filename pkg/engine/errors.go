package engine

import "errors"

// Construction-time failures. All of them abort Init and Replace.
var (
	ErrCompile            = errors.New("failed to compile module")
	ErrMissingEntryExport = errors.New("guest module did not export __guest_call function")
	ErrEntrySignature     = errors.New("guest entry function has the wrong signature")
	ErrUnknownNamespace   = errors.New("import module was not found")
	ErrUnresolvedImport   = errors.New("import could not be resolved")
	ErrImportSignature    = errors.New("import signature does not match host function")
	ErrStartFailed        = errors.New("start export failed")
	ErrInstantiate        = errors.New("failed to instantiate module")
)

// ErrUnknownHostFunction means the guest was built against a different waPC protocol
// version than this host.
var ErrUnknownHostFunction = errors.New("unknown waPC host function")

// Lifecycle misuse.
var (
	ErrNotInitialized     = errors.New("provider not initialized")
	ErrAlreadyInitialized = errors.New("provider already initialized")
	ErrClosed             = errors.New("provider closed")
)
