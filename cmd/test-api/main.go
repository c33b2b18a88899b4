// Package main is a post-deployment smoke test. It requests the public health,
// readiness and version endpoints of a running server and exits non-zero if any of
// them does not answer 200.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	base := "http://localhost:3001"
	if len(os.Args) > 1 {
		base = strings.TrimRight(os.Args[1], "/")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, path := range []string{"/health", "/ready", "/version"} {
		resp, err := client.Get(base + path)
		if err != nil {
			fmt.Printf("%-10s error: %v\n", path, err)
			failed = true
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		fmt.Printf("%-10s %d %s\n", path, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode != http.StatusOK {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
