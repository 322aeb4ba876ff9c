//nolint:all
package server_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrei-cloud/anet"
	"github.com/andrei-cloud/go_wapc/internal/modules"
	server "github.com/andrei-cloud/go_wapc/internal/server"
	"github.com/andrei-cloud/go_wapc/internal/wasmtest"
	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "127.0.0.1:1517"

// startTestServer starts the server with the echo and trap guests loaded.
func startTestServer(t *testing.T) *server.Server {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.wasm"), wasmtest.Echo(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trap.wasm"), wasmtest.Trap(), 0o644))

	mgr, err := modules.NewManager(dir, 2, modules.WithEngineOptions(engine.WithEngine(engine.EngineInterpreter)))
	require.NoError(t, err)
	require.NoError(t, mgr.LoadAll(context.Background()))
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	srv, err := server.NewServer(testAddr, mgr)
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("server start error: %v", err)
		}
	case <-time.After(1 * time.Second):
		// Allow some time for the server to start
	}

	time.Sleep(100 * time.Millisecond)

	return srv
}

// TestServerFrames covers success, guest failure, trap, unknown module and malformed frames
// over one connection.
func TestServerFrames(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
			conn.Close()

			return nil, err
		}

		return conn, nil
	}

	// The broker refuses to send once every pool is at capacity, idle connections included.
	pool := anet.NewPool(2, factory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	testCases := []struct {
		name     string
		frame    []byte
		want     []byte
		contains string
	}{
		{name: "echo", frame: server.EncodeRequest("echo", "ping", []byte("hello")), want: []byte("0hello")},
		{name: "guest error", frame: server.EncodeRequest("echo", "ping", nil), contains: wasmtest.EmptyPayloadError},
		{name: "trap", frame: server.EncodeRequest("trap", "ping", []byte("x")), contains: "unreachable"},
		{name: "unknown module", frame: server.EncodeRequest("nope", "ping", []byte("x")), contains: modules.ErrUnknownModule.Error()},
		{name: "malformed", frame: []byte("no header"), contains: server.ErrMalformedRequest.Error()},
	}

	for _, tc := range testCases {
		req := tc.frame
		resp, err := broker.Send(&req)
		require.NoError(t, err, tc.name)

		if tc.want != nil {
			assert.Equal(t, tc.want, resp, tc.name)
			continue
		}
		require.NotEmpty(t, resp, tc.name)
		assert.Equal(t, server.StatusError, resp[0], tc.name)
		assert.Contains(t, string(resp[1:]), tc.contains, tc.name)
	}
}

func TestParseRequest(t *testing.T) {
	t.Parallel()

	module, op, payload, err := server.ParseRequest([]byte("echo  ping \npay\nload"))
	require.NoError(t, err)
	assert.Equal(t, "echo", module)
	assert.Equal(t, "ping", op)
	assert.Equal(t, []byte("pay\nload"), payload)

	for _, frame := range []string{"", "echo ping", "echo\n", "a b c\n"} {
		_, _, _, err := server.ParseRequest([]byte(frame))
		assert.ErrorIs(t, err, server.ErrMalformedRequest, frame)
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	payload, err := server.DecodeResponse([]byte("0ok"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), payload)

	_, err = server.DecodeResponse([]byte("1boom"))
	require.EqualError(t, err, "boom")

	_, err = server.DecodeResponse(nil)
	require.Error(t, err)
	_, err = server.DecodeResponse([]byte("9"))
	require.Error(t, err)
}
