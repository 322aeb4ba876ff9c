// Package guest provides the guest half of the waPC protocol for Go modules compiled with
// GOOS=wasip1. A module registers its operations with RegisterFunctions and exports
// HandleCall as __guest_call.
package guest

import (
	"errors"
	"fmt"
)

// Function handles one operation. The returned bytes become the guest response; a
// non-nil error becomes the guest error and fails the call.
type Function func(payload []byte) ([]byte, error)

// Functions maps operation names to handlers.
type Functions map[string]Function

// imports is the set of waPC host functions the guest relies on.
type imports interface {
	guestRequest(operation, payload []byte)
	guestResponse(payload []byte)
	guestError(msg []byte)
	hostCall(binding, namespace, operation string, payload []byte) bool
	hostResponseLen() uint32
	hostResponse(buf []byte)
	hostErrorLen() uint32
	hostError(buf []byte)
	consoleLog(msg string)
}

type dispatcher struct {
	host      imports
	functions Functions
}

func newDispatcher(host imports) *dispatcher {
	return &dispatcher{host: host, functions: make(Functions)}
}

var std = newDispatcher(wapcImports)

// RegisterFunctions adds fns to the operations served by HandleCall. Registering a name
// twice replaces the earlier handler.
func RegisterFunctions(fns Functions) {
	std.register(fns)
}

// HandleCall serves one __guest_call: it fetches the pending request, runs the matching
// handler and reports the outcome to the host. It returns 1 on success and 0 on failure.
func HandleCall(operationLen, payloadLen uint32) int32 {
	return std.handleCall(operationLen, payloadLen)
}

// HostCall asks the host to run operation in namespace for binding.
func HostCall(binding, namespace, operation string, payload []byte) ([]byte, error) {
	return std.hostCall(binding, namespace, operation, payload)
}

// ConsoleLog writes msg to the host log.
func ConsoleLog(msg string) {
	std.host.consoleLog(msg)
}

func (d *dispatcher) register(fns Functions) {
	for name, fn := range fns {
		d.functions[name] = fn
	}
}

func (d *dispatcher) handleCall(operationLen, payloadLen uint32) int32 {
	operation := make([]byte, operationLen)
	payload := make([]byte, payloadLen)
	d.host.guestRequest(operation, payload)

	fn, ok := d.functions[string(operation)]
	if !ok {
		d.host.guestError([]byte(fmt.Sprintf("could not find function %s", operation)))
		return 0
	}

	response, err := fn(payload)
	if err != nil {
		d.host.guestError([]byte(err.Error()))
		return 0
	}
	d.host.guestResponse(response)

	return 1
}

func (d *dispatcher) hostCall(binding, namespace, operation string, payload []byte) ([]byte, error) {
	if !d.host.hostCall(binding, namespace, operation, payload) {
		msg := make([]byte, d.host.hostErrorLen())
		d.host.hostError(msg)

		return nil, errors.New(string(msg))
	}

	response := make([]byte, d.host.hostResponseLen())
	d.host.hostResponse(response)

	return response, nil
}
