package main

import (
	"bufio"
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

func main() {
	server := flag.String("server", "http://localhost:8080", "agent memory server URL")
	sourceApp := flag.String("source", "memctl", "source_app recorded on submitted memories")
	flag.Parse()

	fmt.Println("agent memory CLI")
	fmt.Printf("Server: %s | source_app: %s\n", *server, *sourceApp)
	fmt.Println("Type text to remember it. Prefix with '?' to search instead.")
	fmt.Println("Commands: /curate (trigger consolidation now)")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == "/curate" {
			triggerCurator(*server)
			continue
		}
		if strings.HasPrefix(input, "?") {
			search(*server, strings.TrimSpace(input[1:]))
			continue
		}

		submit(*server, *sourceApp, input)
	}
}

func submit(server, sourceApp, text string) {
	body, _ := json.Marshal(map[string]any{
		"text":       text,
		"source_app": sourceApp,
	})

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(server+"/api/memory", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		printError("server error (%d): %s", resp.StatusCode, string(data))
		return
	}
	fmt.Println("\033[32m✓ queued\033[0m")
}

func search(server, query string) {
	if query == "" {
		printError("empty query")
		return
	}
	resp, err := http.Get(server + "/api/search?q=" + strings.ReplaceAll(query, " ", "+"))
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var results []struct {
		Text  string  `json:"text"`
		Score float32 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		printError("failed to parse results: %v", err)
		return
	}
	if len(results) == 0 {
		fmt.Println("no matches.")
		return
	}
	for _, r := range results {
		fmt.Printf("\033[36m[%.3f]\033[0m %s\n", r.Score, r.Text)
	}
}

func triggerCurator(server string) {
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(server+"/trigger-curator", "application/json", nil)
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	fmt.Println("\033[32m✓ curator run triggered\033[0m")
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
