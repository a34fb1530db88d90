package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/queue-sentinel/internal/config"
	"github.com/GriffinCanCode/queue-sentinel/internal/reference"
	"github.com/GriffinCanCode/queue-sentinel/internal/server"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// baseURL turns a listen address such as ":8420" into a dialable URL.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func resolveAddr(cfg *config.Config) string {
	if serverAddr != "" {
		return baseURL(serverAddr)
	}
	return baseURL(cfg.HTTPAddr)
}

// decodeResponse decodes a status body, or turns an error body into an error.
func decodeResponse(resp *http.Response) (server.StatusResponse, error) {
	var st server.StatusResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return st, err
	}
	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Code != "" {
			return st, fmt.Errorf("%s: %s", e.Code, e.Error)
		}
		return st, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return st, json.Unmarshal(body, &st)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resp, err := httpClient.Get(resolveAddr(cfg) + "/api/status")
	if err != nil {
		return fmt.Errorf("sentinel not reachable: %w", err)
	}
	defer resp.Body.Close()

	st, err := decodeResponse(resp)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(os.Stdout, st)
	return nil
}

func printStatus(w io.Writer, st server.StatusResponse) {
	label := color.New(color.Bold).SprintFunc()
	good := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	window := warn("none")
	if st.Window != nil {
		window = fmt.Sprintf("%s (%dx%d)", st.Window.Title, st.Window.Width, st.Window.Height)
	}
	ref := warn("not selected")
	if st.HasReference {
		ref = fmt.Sprintf("armed, match floor %d", st.MatchFloor)
	}
	running := bad(st.Running)
	if st.Watching {
		running = good(st.Running)
	}
	queued := warn(st.QueuedLabel)
	if st.Queued {
		queued = good(st.QueuedLabel)
	}

	fmt.Fprintf(w, "%s %s\n", label("Mode:     "), st.Mode)
	fmt.Fprintf(w, "%s %s\n", label("Window:   "), window)
	fmt.Fprintf(w, "%s %s\n", label("Reference:"), ref)
	fmt.Fprintf(w, "%s %s\n", label("Watcher:  "), running)
	fmt.Fprintf(w, "%s %s\n", label("Queued?   "), queued)
	if st.LastCheck != nil {
		fmt.Fprintf(w, "%s %s ago\n", label("Checked:  "), time.Since(*st.LastCheck).Round(time.Second))
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resp, err := httpClient.Post(resolveAddr(cfg)+"/api/reset", "application/json", http.NoBody)
	if err != nil {
		var opErr *net.OpError
		if !errors.As(err, &opErr) {
			return err
		}
		// nothing is listening: clear the persisted copy directly
		store := reference.NewStore(cfg.ReferencePath())
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Printf("cleared %s\n", store.Path())
		return nil
	}
	defer resp.Body.Close()

	if _, err := decodeResponse(resp); err != nil {
		return err
	}
	color.Green("reference cleared, waiting for the target window")
	return nil
}
