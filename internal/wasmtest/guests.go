package wasmtest

import (
	"encoding/binary"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
)

// Guest memory layout. The operation name is written at OpPtr, payloads at PayloadPtr.
const (
	OpPtr       = 0
	StringsPtr  = 512
	PayloadPtr  = 1024
	ResponsePtr = 32768
)

// EmptyPayloadError is reported by Echo for an empty payload.
const EmptyPayloadError = "empty payload"

// RelayBinding and RelayNamespace are the host call coordinates used by Relay.
const (
	RelayBinding   = "relay"
	RelayNamespace = "test"
)

var (
	i32x1 = []byte{I32}
	i32x2 = []byte{I32, I32}
)

type waPCImports struct {
	consoleLog, hostCall, guestRequest, hostResponse, hostResponseLen uint32
	guestResponse, guestError, hostError, hostErrorLen                uint32
}

func importWaPC(m *Module) waPCImports {
	ns := wapc.HostNamespace

	return waPCImports{
		consoleLog:      m.ImportFunc(ns, wapc.HostConsoleLog, i32x2, nil),
		hostCall:        m.ImportFunc(ns, wapc.HostCallFn, []byte{I32, I32, I32, I32, I32, I32, I32, I32}, i32x1),
		guestRequest:    m.ImportFunc(ns, wapc.GuestRequestFn, i32x2, nil),
		hostResponse:    m.ImportFunc(ns, wapc.HostResponseFn, i32x1, nil),
		hostResponseLen: m.ImportFunc(ns, wapc.HostResponseLenFn, nil, i32x1),
		guestResponse:   m.ImportFunc(ns, wapc.GuestResponseFn, i32x2, nil),
		guestError:      m.ImportFunc(ns, wapc.GuestErrorFn, i32x2, nil),
		hostError:       m.ImportFunc(ns, wapc.HostErrorFn, i32x1, nil),
		hostErrorLen:    m.ImportFunc(ns, wapc.HostErrorLenFn, nil, i32x1),
	}
}

// entry adds body as the exported __guest_call.
func entry(m *Module, body []byte) *Module {
	return m.Export(wapc.GuestCall, m.Func(i32x2, i32x1, body...))
}

// Echo logs the operation name to the console and responds with the request payload.
// An empty payload fails with EmptyPayloadError.
func Echo() []byte {
	m := New()
	w := importWaPC(m)
	m.Memory().Data(StringsPtr, []byte(EmptyPayloadError))

	return entry(m, Code(
		LocalGet(1), []byte{OpI32Eqz}, IfI32(),
		I32Const(StringsPtr), I32Const(int32(len(EmptyPayloadError))), Call(w.guestError),
		I32Const(0),
		Else(),
		I32Const(OpPtr), I32Const(PayloadPtr), Call(w.guestRequest),
		I32Const(OpPtr), LocalGet(0), Call(w.consoleLog),
		I32Const(PayloadPtr), LocalGet(1), Call(w.guestResponse),
		I32Const(1),
		End(),
	)).Bytes()
}

// Relay forwards each invocation to the host as a host call and answers with the host's
// response, or fails with the host's error.
func Relay() []byte {
	m := New()
	w := importWaPC(m)
	m.Memory().Data(StringsPtr, []byte(RelayBinding+RelayNamespace))

	return entry(m, Code(
		I32Const(OpPtr), I32Const(PayloadPtr), Call(w.guestRequest),
		I32Const(StringsPtr), I32Const(int32(len(RelayBinding))),
		I32Const(StringsPtr+int32(len(RelayBinding))), I32Const(int32(len(RelayNamespace))),
		I32Const(OpPtr), LocalGet(0),
		I32Const(PayloadPtr), LocalGet(1),
		Call(w.hostCall),
		IfI32(),
		I32Const(ResponsePtr), Call(w.hostResponse),
		I32Const(ResponsePtr), Call(w.hostResponseLen), Call(w.guestResponse),
		I32Const(1),
		Else(),
		I32Const(ResponsePtr), Call(w.hostError),
		I32Const(ResponsePtr), Call(w.hostErrorLen), Call(w.guestError),
		I32Const(0),
		End(),
	)).Bytes()
}

// Const returns v from every call without touching the waPC imports.
func Const(v int32) []byte {
	m := New()
	return entry(m, I32Const(v)).Bytes()
}

// Trap hits unreachable on every call.
func Trap() []byte {
	m := New()
	return entry(m, []byte{OpUnreachable}).Bytes()
}

// StartOrder records the order its start exports ran in as decimal digits: _start
// appends 1, _initialize 2 and wapc_init 3. Every call returns the recorded value.
func StartOrder() []byte {
	m := New()
	g := m.Global(0)
	step := func(digit int32) []byte {
		return Code(GlobalGet(g), I32Const(10), []byte{OpI32Mul}, I32Const(digit), []byte{OpI32Add}, GlobalSet(g))
	}

	// declared in reverse so export order differs from run order.
	m.Export(wapc.WapcInitFn, m.Func(nil, nil, step(3)...))
	m.Export(wapc.InitializeFn, m.Func(nil, nil, step(2)...))
	m.Export(wapc.StartFn, m.Func(nil, nil, step(1)...))

	return entry(m, GlobalGet(g)).Bytes()
}

// ExitingStart has a _start that calls proc_exit(0), the way a WASI command ends main.
// Calls return v.
func ExitingStart(v int32) []byte {
	m := New()
	procExit := m.ImportFunc("wasi_snapshot_preview1", "proc_exit", i32x1, nil)
	m.Memory()
	m.Export(wapc.StartFn, m.Func(nil, nil, Code(I32Const(0), Call(procExit))...))

	return entry(m, I32Const(v)).Bytes()
}

// Print writes msg to stdout with fd_write and responds with msg.
func Print(msg string) []byte {
	const iovPtr = ResponsePtr

	m := New()
	w := importWaPC(m)
	fdWrite := m.ImportFunc("wasi_snapshot_preview1", "fd_write", []byte{I32, I32, I32, I32}, i32x1)

	iov := make([]byte, 8)
	binary.LittleEndian.PutUint32(iov[0:], StringsPtr)
	binary.LittleEndian.PutUint32(iov[4:], uint32(len(msg)))
	m.Memory().Data(StringsPtr, []byte(msg)).Data(iovPtr, iov)

	return entry(m, Code(
		I32Const(1), I32Const(iovPtr), I32Const(1), I32Const(iovPtr+8), Call(fdWrite),
		[]byte{OpDrop},
		I32Const(StringsPtr), I32Const(int32(len(msg))), Call(w.guestResponse),
		I32Const(1),
	)).Bytes()
}
