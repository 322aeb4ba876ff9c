package guest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost plays the host side of one request and records what the guest sends back.
type fakeHost struct {
	operation string
	payload   []byte

	response []byte
	errMsg   string

	hostResp []byte
	hostErr  string
	called   []string
	logs     []string
}

func (h *fakeHost) guestRequest(operation, payload []byte) {
	copy(operation, h.operation)
	copy(payload, h.payload)
}

func (h *fakeHost) guestResponse(payload []byte) { h.response = append([]byte(nil), payload...) }

func (h *fakeHost) guestError(msg []byte) { h.errMsg = string(msg) }

func (h *fakeHost) hostCall(binding, namespace, operation string, payload []byte) bool {
	h.called = append(h.called, binding+"/"+namespace+"/"+operation+":"+string(payload))
	h.hostResp, h.hostErr = nil, ""
	if operation == "fail" {
		h.hostErr = "host refused"
		return false
	}
	h.hostResp = append([]byte("host:"), payload...)

	return true
}

func (h *fakeHost) hostResponseLen() uint32 { return uint32(len(h.hostResp)) }

func (h *fakeHost) hostResponse(buf []byte) { copy(buf, h.hostResp) }

func (h *fakeHost) hostErrorLen() uint32 { return uint32(len(h.hostErr)) }

func (h *fakeHost) hostError(buf []byte) { copy(buf, h.hostErr) }

func (h *fakeHost) consoleLog(msg string) { h.logs = append(h.logs, msg) }

func (h *fakeHost) call(d *dispatcher, operation string, payload []byte) int32 {
	h.operation, h.payload = operation, payload
	h.response, h.errMsg = nil, ""

	return d.handleCall(uint32(len(operation)), uint32(len(payload)))
}

func TestHandleCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		operation string
		payload   string
		result    int32
		response  string
		errMsg    string
	}{
		{name: "echo", operation: "echo", payload: "hello", result: 1, response: "hello"},
		{name: "empty payload", operation: "echo", payload: "", result: 1, response: ""},
		{name: "handler error", operation: "fail", payload: "x", result: 0, errMsg: "bad input: x"},
		{name: "unknown operation", operation: "nope", payload: "x", result: 0, errMsg: "could not find function nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := &fakeHost{}
			d := newDispatcher(host)
			d.register(Functions{
				"echo": func(p []byte) ([]byte, error) { return p, nil },
				"fail": func(p []byte) ([]byte, error) { return nil, errors.New("bad input: " + string(p)) },
			})

			assert.Equal(t, tt.result, host.call(d, tt.operation, []byte(tt.payload)))
			assert.Equal(t, tt.response, string(host.response))
			assert.Equal(t, tt.errMsg, host.errMsg)
		})
	}
}

func TestRegisterReplacesHandler(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	d := newDispatcher(host)
	d.register(Functions{"op": func([]byte) ([]byte, error) { return []byte("v1"), nil }})
	d.register(Functions{"op": func([]byte) ([]byte, error) { return []byte("v2"), nil }})

	require.Equal(t, int32(1), host.call(d, "op", nil))
	assert.Equal(t, "v2", string(host.response))
}

func TestHostCall(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	d := newDispatcher(host)

	resp, err := d.hostCall("b", "ns", "get", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, "host:key", string(resp))

	_, err = d.hostCall("b", "ns", "fail", nil)
	require.EqualError(t, err, "host refused")

	assert.Equal(t, []string{"b/ns/get:key", "b/ns/fail:"}, host.called)
}

func TestHandlerUsesHostCall(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	d := newDispatcher(host)
	d.register(Functions{
		"relay": func(p []byte) ([]byte, error) {
			d.host.consoleLog("relaying")
			return d.hostCall("relay", "test", "relay", p)
		},
	})

	require.Equal(t, int32(1), host.call(d, "relay", []byte("ping")))
	assert.Equal(t, "host:ping", string(host.response))
	assert.Equal(t, []string{"relaying"}, host.logs)
}
