// Package main provides remapctl, a small CLI for inspecting and
// controlling a running remapd instance over its diagnostics HTTP server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:9091", "remapd diagnostics server address")

	layersCmd := flag.NewFlagSet("layers", flag.ExitOnError)
	rehookCmd := flag.NewFlagSet("rehook", flag.ExitOnError)
	healthCmd := flag.NewFlagSet("health", flag.ExitOnError)
	watchCmd := flag.NewFlagSet("watch", flag.ExitOnError)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	flag.Parse()

	switch os.Args[1] {
	case "layers":
		layersCmd.Parse(os.Args[2:])
		getLayers(*addr)
	case "rehook":
		rehookCmd.Parse(os.Args[2:])
		postRehook(*addr)
	case "health":
		healthCmd.Parse(os.Args[2:])
		getHealth(*addr)
	case "watch":
		watchCmd.Parse(os.Args[2:])
		watchEvents(*addr)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`remapctl: inspect and control a running remapd instance

Usage:
  remapctl <command> [options]

Commands:
  layers    Show current layer states
  rehook    Force the engine to reinstall its OS hooks
  health    Check whether remapd is responding
  watch     Stream live layer/remap/rehook change notifications

Examples:
  remapctl layers
  remapctl rehook
  remapctl watch`)
}

func getLayers(addr string) {
	resp, err := http.Get(addr + "/layers")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	printJSONBytes(body)
}

func postRehook(addr string) {
	resp, err := http.Post(addr+"/rehook", "application/json", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	printJSONBytes(body)
}

func getHealth(addr string) {
	resp, err := http.Get(addr + "/health")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	printJSONBytes(body)
}

// watchEvents connects to /events and prints each newline-delimited JSON
// change as it arrives, until the connection is closed or Ctrl+C.
func watchEvents(addr string) {
	resp, err := http.Get(addr + "/events")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var obj interface{}
		if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
			continue
		}
		printJSON(obj)
	}
}

func printJSON(data interface{}) {
	jsonBytes, _ := json.MarshalIndent(data, "", "  ")
	fmt.Println(string(jsonBytes))
}

func printJSONBytes(data []byte) {
	var obj interface{}
	json.Unmarshal(data, &obj)
	printJSON(obj)
}
