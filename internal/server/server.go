package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/andrei-cloud/go_wapc/internal/logging"
	"github.com/rs/zerolog/log"
)

// Response status bytes.
const (
	StatusOK    byte = '0'
	StatusError byte = '1'
)

// ErrMalformedRequest is returned for frames without a module and operation header.
var ErrMalformedRequest = errors.New("malformed request")

// Executor runs an operation on a named guest module.
type Executor interface {
	Execute(ctx context.Context, module, operation string, payload []byte) ([]byte, error)
}

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

// Server wraps the anet TCP server and dispatches frames to guest modules.
type Server struct {
	address     string
	srv         *anetserver.Server
	exec        Executor
	activeConns int32
}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// NewServer configures and returns the server instance.
func NewServer(address string, exec Executor) (*Server, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        100,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &Server{
		address: address,
		exec:    exec,
	}
	srv, err := anetserver.NewServer(address, anetserver.HandlerFunc(s.handle), cfg)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}
	s.srv = srv

	return s, nil
}

// Start begins listening for connections.
func (s *Server) Start() error {
	log.Info().Str("event", "server_started").Str("address", s.address).Msg("server started")
	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

// ParseRequest splits a request frame of the form "<module> <operation>\n<payload>".
func ParseRequest(data []byte) (module, operation string, payload []byte, err error) {
	header, payload, found := bytes.Cut(data, []byte{'\n'})
	if !found {
		return "", "", nil, ErrMalformedRequest
	}

	fields := bytes.Fields(header)
	if len(fields) != 2 {
		return "", "", nil, ErrMalformedRequest
	}

	return string(fields[0]), string(fields[1]), payload, nil
}

// EncodeRequest builds a request frame.
func EncodeRequest(module, operation string, payload []byte) []byte {
	frame := make([]byte, 0, len(module)+len(operation)+2+len(payload))
	frame = append(frame, module...)
	frame = append(frame, ' ')
	frame = append(frame, operation...)
	frame = append(frame, '\n')

	return append(frame, payload...)
}

// DecodeResponse splits a response frame into its payload or error.
func DecodeResponse(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errors.New("empty response")
	}

	switch frame[0] {
	case StatusOK:
		return frame[1:], nil
	case StatusError:
		return nil, errors.New(string(frame[1:]))
	default:
		return nil, fmt.Errorf("unknown response status %q", frame[0])
	}
}

func errorResponse(err error) []byte {
	return append([]byte{StatusError}, err.Error()...)
}

func (s *Server) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	active := atomic.AddInt32(&s.activeConns, 1)
	defer atomic.AddInt32(&s.activeConns, -1)

	start := time.Now()

	module, operation, payload, err := ParseRequest(data)
	if err != nil {
		log.Error().
			Str("event", "malformed_request").
			Str("client_ip", client).
			Int("size", len(data)).
			Msg("malformed request")

		return errorResponse(err), nil
	}
	logging.LogRequest(client, module, operation, payload, int(active))

	resp, err := s.exec.Execute(context.Background(), module, operation, payload)
	if err != nil {
		log.Error().
			Str("event", "guest_execution_error").
			Str("client_ip", client).
			Str("module", module).
			Str("operation", operation).
			Err(err).
			Msg("guest execution failed")

		resp = errorResponse(err)
	} else {
		resp = append([]byte{StatusOK}, resp...)
	}

	logging.LogResponse(client, module, operation, resp, err != nil, time.Since(start))

	return resp, nil
}
