// recordctl is a small command line client for the VoiceNotes control API.
// It is meant to be bound to a hotkey: `recordctl toggle` starts a recording
// when idle and stops and saves it when one is in progress.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const usage = `Usage: recordctl [flags] <command> [args]

Commands:
  toggle              Start recording when idle, stop and save otherwise
  start               Start a recording session
  stop                Stop the session and save the take
  status              Show the session status
  settings            Show the current settings
  set-key <key>       Set the transcription API credential
  enable              Enable transcription
  disable             Disable transcription
  note <path>         Set the note transcripts are inserted into

Flags:
`

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8721", "Control API address")
	timeout := flag.Duration("timeout", 60*time.Second, "Request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	client := &http.Client{Timeout: *timeout}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "toggle":
		err = call(client, http.MethodPost, *addr+"/api/v1/record/toggle", nil)
	case "start":
		err = call(client, http.MethodPost, *addr+"/api/v1/record/start", nil)
	case "stop":
		err = call(client, http.MethodPost, *addr+"/api/v1/record/stop", nil)
	case "status":
		err = call(client, http.MethodGet, *addr+"/api/v1/status", nil)
	case "settings":
		err = call(client, http.MethodGet, *addr+"/api/v1/settings", nil)
	case "set-key":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "set-key requires the credential as an argument")
			os.Exit(2)
		}
		err = call(client, http.MethodPut, *addr+"/api/v1/settings",
			map[string]interface{}{"api_key": flag.Arg(1)})
	case "enable":
		err = call(client, http.MethodPut, *addr+"/api/v1/settings",
			map[string]interface{}{"transcription_enabled": true})
	case "disable":
		err = call(client, http.MethodPut, *addr+"/api/v1/settings",
			map[string]interface{}{"transcription_enabled": false})
	case "note":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "note requires a path argument")
			os.Exit(2)
		}
		err = call(client, http.MethodPut, *addr+"/api/v1/note/active",
			map[string]interface{}{"path": flag.Arg(1)})
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// call performs one request and pretty-prints the JSON response
func call(client *http.Client, method, url string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		// Not JSON, print as is
		fmt.Println(string(payload))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return nil
}
