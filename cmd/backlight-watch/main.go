package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// backlight-watch tails the backlightd WebSocket state stream and prints
// state changes as they happen. Useful for debugging rule behavior and for
// piping into dashboards.

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type decisionData struct {
	Level int    `json:"level"`
	Rule  string `json:"rule"`
}

type profileData struct {
	Name string `json:"name"`
}

type signalsData struct {
	VideoPlaying bool    `json:"video_playing"`
	Power        string  `json:"power"`
	SSID         *string `json:"ssid,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3201/ws", "backlightd state stream URL")
		raw   = flag.Bool("raw", false, "Print raw JSON envelopes instead of formatted lines")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// The server pings; answering pongs is handled by gorilla automatically,
	// but we still extend the read deadline on each one.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if *raw {
				fmt.Println(string(message))
				continue
			}
			printEnvelope(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func printEnvelope(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	stamp := ""
	if env.Ts != nil {
		stamp = env.Ts.Local().Format("15:04:05") + " "
	}

	switch env.Type {
	case "state_init":
		pretty, _ := json.MarshalIndent(json.RawMessage(env.Data), "", "  ")
		fmt.Printf("%s[INIT]\n%s\n", stamp, string(pretty))

	case "decision_changed":
		var d decisionData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			fmt.Printf("%s[DECISION] %s\n", stamp, string(env.Data))
			return
		}
		fmt.Printf("%s[DECISION] level=%d rule=%s\n", stamp, d.Level, d.Rule)

	case "profile_changed":
		var p profileData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			fmt.Printf("%s[PROFILE] %s\n", stamp, string(env.Data))
			return
		}
		fmt.Printf("%s[PROFILE] %s\n", stamp, p.Name)

	case "signals_changed":
		var s signalsData
		if err := json.Unmarshal(env.Data, &s); err != nil {
			fmt.Printf("%s[SIGNALS] %s\n", stamp, string(env.Data))
			return
		}
		ssid := "(none)"
		if s.SSID != nil {
			ssid = *s.SSID
		}
		fmt.Printf("%s[SIGNALS] video=%v power=%s ssid=%s\n",
			stamp, s.VideoPlaying, s.Power, ssid)

	default:
		fmt.Printf("%s[%s] %s\n", stamp, env.Type, string(env.Data))
	}
}
