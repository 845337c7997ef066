package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func do(req *http.Request, timeout time.Duration) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func getCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodGet, adminURL(*baseURL, "/admin/v1/"+name), nil)
	do(req, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/snapshot"), nil)
	do(req, 10*time.Second)
}

// deviceCmd drives the spawn, destroy and update endpoints.
func deviceCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	id := fs.Uint64("id", 0, "entity id (destroy, update)")
	kind := fs.String("kind", "CONSUMER", "GENERATOR or CONSUMER (spawn)")
	rate := fs.Int64("rate", -1, "supply or demand rate (spawn, update)")
	x := fs.Float64("x", 0, "x position (spawn)")
	y := fs.Float64("y", 0, "y position (spawn)")
	placed := fs.String("placed", "", "true or false (spawn, update)")
	_ = fs.Parse(args)

	body := map[string]any{}
	switch name {
	case "spawn":
		body["kind"] = *kind
		body["pos"] = [2]float64{*x, *y}
		if *rate >= 0 {
			body["rate"] = *rate
		}
	default:
		if *id == 0 {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		body["entity_id"] = *id
		if name == "update" && *rate >= 0 {
			body["rate"] = *rate
		}
	}
	if name != "destroy" && *placed != "" {
		body["placed"] = *placed == "true"
	}

	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/devices/"+name), bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	do(req, 5*time.Second)
}
