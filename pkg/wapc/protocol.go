// Package wapc implements the host side of the waPC request/response protocol: the
// per-host binding state consulted by host functions, the Host that drives guest calls,
// and a pool of hosts for parallel callers.
package wapc

// HostNamespace is the import module name guests use for waPC host functions.
const HostNamespace = "wapc"

// Host functions a guest may import from HostNamespace.
const (
	// HostConsoleLog writes a guest message to the host log.
	// Signature: __console_log(ptr: i32, len: i32)
	HostConsoleLog = "__console_log"

	// HostCallFn asks the host to run an operation.
	// Signature: __host_call(bd_ptr, bd_len, ns_ptr, ns_len, op_ptr, op_len, ptr, len: i32) -> i32
	HostCallFn = "__host_call"

	// GuestRequestFn copies the pending operation and payload into guest memory.
	// Signature: __guest_request(op_ptr: i32, ptr: i32)
	GuestRequestFn = "__guest_request"

	// HostResponseFn copies the last host call response into guest memory.
	// Signature: __host_response(ptr: i32)
	HostResponseFn = "__host_response"

	// HostResponseLenFn returns the length of the last host call response.
	// Signature: __host_response_len() -> i32
	HostResponseLenFn = "__host_response_len"

	// GuestResponseFn hands the guest's response payload to the host.
	// Signature: __guest_response(ptr: i32, len: i32)
	GuestResponseFn = "__guest_response"

	// GuestErrorFn hands the guest's error message to the host.
	// Signature: __guest_error(ptr: i32, len: i32)
	GuestErrorFn = "__guest_error"

	// HostErrorFn copies the last host call error into guest memory.
	// Signature: __host_error(ptr: i32)
	HostErrorFn = "__host_error"

	// HostErrorLenFn returns the length of the last host call error.
	// Signature: __host_error_len() -> i32
	HostErrorLenFn = "__host_error_len"
)

// Guest exports consumed by the host.
const (
	// GuestCall is the guest's request entry point.
	// Signature: __guest_call(op_len: i32, payload_len: i32) -> i32
	GuestCall = "__guest_call"

	// StartFn is the WASI command start function.
	StartFn = "_start"

	// InitializeFn is the WASI reactor initialization function.
	InitializeFn = "_initialize"

	// WapcInitFn is the waPC guest initialization function.
	WapcInitFn = "wapc_init"
)

// RequiredStarts lists the start exports run once per instance, in order, when declared.
var RequiredStarts = []string{StartFn, InitializeFn, WapcInitFn}
