package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// backlightctl - Command-line IPC Client
// ============================================================================
// This tool sends commands to the backlightd daemon via its unix socket.
//
// Usage:
//   backlightctl status
//   backlightctl profiles
//   backlightctl switch work
//   backlightctl set 2
//   backlightctl clear
//   backlightctl schedule-add work 22:30 1
//   backlightctl schedule-remove work 22:30
//   backlightctl refresh
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/backlightd.sock)
// ============================================================================

// Wire types (duplicated from the daemon for a standalone binary)

type Request struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

type Response struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type statusInfo struct {
	ActiveProfile string `json:"active_profile"`
	Decision      struct {
		Level int    `json:"level"`
		Rule  string `json:"rule"`
	} `json:"decision"`
	AppliedLevel int  `json:"applied_level"`
	AppliedKnown bool `json:"applied_known"`
	MaxLevel     int  `json:"max_level"`
	Override     *struct {
		Level int    `json:"level"`
		SetAt string `json:"set_at"`
	} `json:"override,omitempty"`
	IdleElapsedS int     `json:"idle_elapsed_sec"`
	VideoPlaying bool    `json:"video_playing"`
	Power        string  `json:"power"`
	SSID         *string `json:"ssid,omitempty"`
}

func main() {
	socketPath := "/tmp/backlightd.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	req, err := buildRequest(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := sendRequest(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.Status == "error" {
		if resp.Error != nil {
			fmt.Fprintf(os.Stderr, "error (%s): %s\n", resp.Error.Code, resp.Error.Message)
		} else {
			fmt.Fprintln(os.Stderr, "error: daemon returned an error")
		}
		os.Exit(1)
	}

	printResult(req.Op, resp.Data)
}

func buildRequest(args []string) (Request, error) {
	switch args[0] {
	case "status":
		return Request{Op: "status"}, nil

	case "profiles", "list-profiles":
		return Request{Op: "list-profiles"}, nil

	case "switch", "switch-profile":
		if len(args) < 2 {
			return Request{}, fmt.Errorf("switch requires a profile name")
		}
		return requestWithArgs("switch-profile", map[string]any{"name": args[1]})

	case "set", "set-manual":
		if len(args) < 2 {
			return Request{}, fmt.Errorf("set requires a brightness level")
		}
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return Request{}, fmt.Errorf("invalid level %q", args[1])
		}
		return requestWithArgs("set-manual", map[string]any{"level": level})

	case "clear", "clear-manual":
		return Request{Op: "clear-manual"}, nil

	case "schedule-add":
		if len(args) < 4 {
			return Request{}, fmt.Errorf("schedule-add requires: <profile> <HH:MM> <level>")
		}
		hour, minute, err := parseClock(args[2])
		if err != nil {
			return Request{}, err
		}
		level, err := strconv.Atoi(args[3])
		if err != nil {
			return Request{}, fmt.Errorf("invalid level %q", args[3])
		}
		return requestWithArgs("add-schedule", map[string]any{
			"profile": args[1], "hour": hour, "minute": minute, "level": level,
		})

	case "schedule-remove":
		if len(args) < 3 {
			return Request{}, fmt.Errorf("schedule-remove requires: <profile> <HH:MM>")
		}
		hour, minute, err := parseClock(args[2])
		if err != nil {
			return Request{}, err
		}
		return requestWithArgs("remove-schedule", map[string]any{
			"profile": args[1], "hour": hour, "minute": minute,
		})

	case "refresh":
		return Request{Op: "refresh"}, nil

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
		return Request{}, nil

	default:
		return Request{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func requestWithArgs(op string, args map[string]any) (Request, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return Request{}, fmt.Errorf("marshal args: %w", err)
	}
	return Request{Op: op, Args: data}, nil
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(s string) (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, minute, nil
}

func sendRequest(socketPath string, req Request) (Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w (is backlightd running?)", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	decoder := json.NewDecoder(bufio.NewReader(conn))
	if err := decoder.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	return resp, nil
}

func printResult(op string, data json.RawMessage) {
	switch op {
	case "status":
		var st statusInfo
		if err := json.Unmarshal(data, &st); err != nil {
			fmt.Println(string(data))
			return
		}
		fmt.Printf("profile:    %s\n", st.ActiveProfile)
		fmt.Printf("brightness: %d/%d (rule: %s)\n", st.Decision.Level, st.MaxLevel, st.Decision.Rule)
		if st.AppliedKnown {
			fmt.Printf("applied:    %d\n", st.AppliedLevel)
		} else {
			fmt.Printf("applied:    unknown\n")
		}
		if st.Override != nil {
			fmt.Printf("override:   level %d (set %s)\n", st.Override.Level, st.Override.SetAt)
		} else {
			fmt.Printf("override:   none\n")
		}
		fmt.Printf("idle:       %ds\n", st.IdleElapsedS)
		fmt.Printf("video:      %v\n", st.VideoPlaying)
		fmt.Printf("power:      %s\n", st.Power)
		if st.SSID != nil {
			fmt.Printf("network:    %s\n", *st.SSID)
		} else {
			fmt.Printf("network:    (none)\n")
		}

	case "list-profiles":
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			fmt.Println(string(data))
			return
		}
		for _, name := range names {
			fmt.Println(name)
		}

	default:
		if len(data) > 0 {
			fmt.Println(string(data))
		} else {
			fmt.Println("ok")
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `backlightctl - Control the backlightd daemon via IPC

Usage:
  backlightctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/backlightd.sock)

Commands:
  status                               Show active profile, decision and signals
  profiles                             List profile names
  switch <name>                        Switch the active profile
  set <level>                          Set a manual brightness override
  clear                                Clear the manual override
  schedule-add <profile> <HH:MM> <lv>  Add a schedule entry
  schedule-remove <profile> <HH:MM>    Remove a schedule entry
  refresh                              Force an immediate re-evaluation
  help, -h, --help                     Show this help message

Examples:
  backlightctl status
  backlightctl set 2
  backlightctl schedule-add work 22:30 1
  backlightctl -socket /run/backlightd.sock switch home
`)
}
