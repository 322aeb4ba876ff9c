//go:build wasip1

package guest

import "unsafe"

var wapcImports imports = wasmImports{}

//go:wasmimport wapc __guest_request
func wapcGuestRequest(operationPtr, payloadPtr uint32)

//go:wasmimport wapc __guest_response
func wapcGuestResponse(ptr, length uint32)

//go:wasmimport wapc __guest_error
func wapcGuestError(ptr, length uint32)

//go:wasmimport wapc __host_call
func wapcHostCall(bindingPtr, bindingLen, namespacePtr, namespaceLen, operationPtr, operationLen, payloadPtr, payloadLen uint32) uint32

//go:wasmimport wapc __host_response_len
func wapcHostResponseLen() uint32

//go:wasmimport wapc __host_response
func wapcHostResponse(ptr uint32)

//go:wasmimport wapc __host_error_len
func wapcHostErrorLen() uint32

//go:wasmimport wapc __host_error
func wapcHostError(ptr uint32)

//go:wasmimport wapc __console_log
func wapcConsoleLog(ptr, length uint32)

type wasmImports struct{}

func (wasmImports) guestRequest(operation, payload []byte) {
	wapcGuestRequest(bytesPtr(operation), bytesPtr(payload))
}

func (wasmImports) guestResponse(payload []byte) {
	wapcGuestResponse(bytesPtr(payload), uint32(len(payload)))
}

func (wasmImports) guestError(msg []byte) {
	wapcGuestError(bytesPtr(msg), uint32(len(msg)))
}

func (wasmImports) hostCall(binding, namespace, operation string, payload []byte) bool {
	return wapcHostCall(
		stringPtr(binding), uint32(len(binding)),
		stringPtr(namespace), uint32(len(namespace)),
		stringPtr(operation), uint32(len(operation)),
		bytesPtr(payload), uint32(len(payload)),
	) == 1
}

func (wasmImports) hostResponseLen() uint32 { return wapcHostResponseLen() }

func (wasmImports) hostResponse(buf []byte) { wapcHostResponse(bytesPtr(buf)) }

func (wasmImports) hostErrorLen() uint32 { return wapcHostErrorLen() }

func (wasmImports) hostError(buf []byte) { wapcHostError(bytesPtr(buf)) }

func (wasmImports) consoleLog(msg string) {
	wapcConsoleLog(stringPtr(msg), uint32(len(msg)))
}

// bytesPtr returns the linear memory offset of b.
//
//nolint:gosec // allow unsafe pointer usage.
func bytesPtr(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}

	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

//nolint:gosec // allow unsafe pointer usage.
func stringPtr(s string) uint32 {
	if len(s) == 0 {
		return 0
	}

	return uint32(uintptr(unsafe.Pointer(unsafe.StringData(s))))
}
