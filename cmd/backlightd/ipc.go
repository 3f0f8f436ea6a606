package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Control Plane
// ============================================================================
// Request/response over line-delimited JSON:
//   Client sends:  {"op": "switch-profile", "args": {"name": "home"}}
//   Server responds: {"status": "ok", "data": ...}
//                 or {"status": "error", "error": {"code": ..., "message": ...}}
//
// Each request becomes a typed event carrying a reply channel; the daemon
// loop answers through CmdReply. Mutations therefore run inside the same
// decision critical section as adapter events and cannot bypass profile
// store validation.
//
// The socket is chmod 0600: local, same-user only.
// ============================================================================

// Request is the control plane wire request.
type Request struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response is the control plane wire response.
type Response struct {
	Status string          `json:"status"` // "ok" or "error"
	Error  *RespError      `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RespError is the structured error payload.
type RespError struct {
	Code    string `json:"code"` // "validation", "not_found", "internal"
	Message string `json:"message"`
}

type switchProfileArgs struct {
	Name string `json:"name"`
}

type setManualArgs struct {
	Level int `json:"level"`
}

type scheduleArgs struct {
	Profile string `json:"profile"`
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Level   int    `json:"level,omitempty"`
}

// runIPCServer starts the unix socket server. It runs until ctx is canceled,
// at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o600); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, events, logger)
	}
}

// handleIPCConnection processes a single client session: one response per
// request, in order. A dropped connection aborts only the in-flight request;
// any mutation it triggered was already validated-then-applied atomically.
func handleIPCConnection(ctx context.Context, conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection opened")

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		logger.Debug("IPC received", "line", string(line))

		resp := dispatchRequest(ctx, line, events)
		if err := encoder.Encode(resp); err != nil {
			logger.Debug("IPC write failed", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

// dispatchRequest parses one request line, routes it through the daemon loop
// and waits for the reply.
func dispatchRequest(ctx context.Context, line []byte, events chan<- Event) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse("validation", fmt.Sprintf("parse request: %v", err))
	}

	reply := make(chan ControlResult, 1)

	ev, err := requestEvent(req, reply)
	if err != nil {
		return errorResponse("validation", err.Error())
	}

	// Concurrent requests queue; only a queue that stays full past the
	// enqueue deadline is reported as an error.
	enqueue := time.NewTimer(ipcEnqueueTimeout)
	defer enqueue.Stop()
	select {
	case events <- ev:
	case <-ctx.Done():
		return errorResponse("internal", "daemon shutting down")
	case <-enqueue.C:
		return errorResponse("internal", "event queue full")
	}

	select {
	case res := <-reply:
		return resultResponse(res)
	case <-time.After(ipcReplyTimeout):
		return errorResponse("internal", "request timed out")
	case <-ctx.Done():
		return errorResponse("internal", "daemon shutting down")
	}
}

// requestEvent maps a wire request onto a typed control event.
func requestEvent(req Request, reply chan ControlResult) (Event, error) {
	switch req.Op {
	case "status":
		return ReqStatus{Reply: reply}, nil

	case "list-profiles":
		return ReqListProfiles{Reply: reply}, nil

	case "switch-profile":
		var args switchProfileArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		if args.Name == "" {
			return nil, errors.New("switch-profile: name is required")
		}
		return ReqSwitchProfile{Name: args.Name, Reply: reply}, nil

	case "set-manual":
		var args setManualArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		return ReqSetManual{Level: args.Level, Reply: reply}, nil

	case "clear-manual":
		return ReqClearManual{Reply: reply}, nil

	case "add-schedule":
		var args scheduleArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		if args.Profile == "" {
			return nil, errors.New("add-schedule: profile is required")
		}
		return ReqAddSchedule{
			Profile: args.Profile,
			Entry:   ScheduleEntry{Hour: args.Hour, Minute: args.Minute, Level: args.Level},
			Reply:   reply,
		}, nil

	case "remove-schedule":
		var args scheduleArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		if args.Profile == "" {
			return nil, errors.New("remove-schedule: profile is required")
		}
		return ReqRemoveSchedule{Profile: args.Profile, Hour: args.Hour, Minute: args.Minute, Reply: reply}, nil

	case "refresh":
		return ReqRefresh{Reply: reply}, nil

	default:
		return nil, fmt.Errorf("unknown operation %q", req.Op)
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing args")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	return nil
}

// resultResponse converts a reducer result into the wire response, mapping
// the error taxonomy to stable codes.
func resultResponse(res ControlResult) Response {
	if res.Err != nil {
		var ve *ValidationError
		var nf *NotFoundError
		switch {
		case errors.As(res.Err, &ve):
			return errorResponse("validation", ve.Error())
		case errors.As(res.Err, &nf):
			return errorResponse("not_found", nf.Error())
		default:
			return errorResponse("internal", res.Err.Error())
		}
	}

	resp := Response{Status: "ok"}
	if res.Data != nil {
		data, err := json.Marshal(res.Data)
		if err != nil {
			return errorResponse("internal", fmt.Sprintf("marshal response: %v", err))
		}
		resp.Data = data
	}
	return resp
}

func errorResponse(code, message string) Response {
	return Response{
		Status: "error",
		Error:  &RespError{Code: code, Message: message},
	}
}
