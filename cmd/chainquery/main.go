// Command chainquery is a one-shot WebSocket debug client for chaingate:
// it connects, sends a single {id, method, params} frame, prints the
// reply, and exits.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type requestFrame struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func main() {
	var (
		addr    = flag.String("addr", "localhost:8765", "gateway HOST:PORT")
		method  = flag.String("method", "get_dynamic_global_properties", "JSON-RPC method name")
		params  = flag.String("params", "", "JSON params array, e.g. [12345678]")
		timeout = flag.Duration("timeout", 5*time.Second, "reply timeout")
		quiet   = flag.Bool("quiet", false, "suppress output (exit status indicates success)")
	)
	flag.Parse()

	if err := run(*addr, *method, *params, *timeout, *quiet); err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "chainquery error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(addr, method, params string, timeout time.Duration, quiet bool) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Drain the connection-hello frame before sending the real request.
	_, _, _ = conn.ReadMessage()

	var rawParams json.RawMessage
	if strings.TrimSpace(params) != "" {
		rawParams = json.RawMessage(params)
	}

	req, err := json.Marshal(requestFrame{ID: 1, Method: method, Params: rawParams})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	if quiet {
		return nil
	}

	var pretty map[string]any
	if err := json.Unmarshal(reply, &pretty); err != nil {
		fmt.Println(string(reply))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(reply))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
