// Package e2e runs the sentinel binary and probes its HTTP and gRPC surfaces
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	httpAddr       = "127.0.0.1:18420"
	grpcAddr       = "127.0.0.1:50161"
	healthService  = "queue-sentinel"
	startupTimeout = 30 * time.Second
	testTimeout    = 10 * time.Second
)

var (
	sentinelBin string
	sentinelCmd *exec.Cmd
	grpcConn    *grpc.ClientConn
	baseURL     = "http://" + httpAddr
)

// TestMain builds and starts the sentinel. It needs a display and an audio device.
func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TEST") != "1" {
		fmt.Println("Skipping integration tests (set INTEGRATION_TEST=1 to run)")
		os.Exit(0)
	}

	tmp, err := os.MkdirTemp("", "sentinel-e2e")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	if err := startSentinel(tmp); err != nil {
		fmt.Printf("Failed to start sentinel: %v\n", err)
		os.Exit(1)
	}

	if err := waitForServer(); err != nil {
		fmt.Printf("Sentinel not ready: %v\n", err)
		stopSentinel()
		os.Exit(1)
	}

	grpcConn, err = grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Printf("Failed to connect to health service: %v\n", err)
		stopSentinel()
		os.Exit(1)
	}

	code := m.Run()

	_ = grpcConn.Close()
	stopSentinel()
	_ = os.RemoveAll(tmp)

	os.Exit(code)
}

func startSentinel(tmp string) error {
	bin := filepath.Join(tmp, "sentinel")
	sentinelBin = bin
	build := exec.Command("go", "build", "-o", bin, "./cmd/sentinel")
	build.Dir = filepath.Join("..", "..")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	sentinelCmd = exec.Command(bin, "run")
	sentinelCmd.Env = append(os.Environ(),
		"HTTP_ADDR="+httpAddr,
		"GRPC_ADDR="+grpcAddr,
		"CONFIG_DIR="+filepath.Join(tmp, "config"),
		"WINDOW_TITLE=sentinel-e2e-no-such-window",
		"LOG_LEVEL=info",
	)
	sentinelCmd.Stdout = os.Stdout
	sentinelCmd.Stderr = os.Stderr

	if err := sentinelCmd.Start(); err != nil {
		return err
	}
	fmt.Printf("Started sentinel (PID: %d)\n", sentinelCmd.Process.Pid)
	return nil
}

func stopSentinel() {
	if sentinelCmd != nil && sentinelCmd.Process != nil {
		fmt.Println("Stopping sentinel...")
		_ = sentinelCmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() {
			_ = sentinelCmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = sentinelCmd.Process.Kill()
		}
	}
}

func waitForServer() error {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				fmt.Println("Sentinel is ready")
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", baseURL)
}

func getJSON(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, baseURL+path, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, body, err)
		}
	}
	return resp.StatusCode
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestE2E_StatusWaitingForWindow(t *testing.T) {
	var st struct {
		Mode    string `json:"mode"`
		Running string `json:"running"`
		Queued  string `json:"queued_label"`
	}
	if code := getJSON(t, "GET", "/api/status", &st); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if st.Mode != "window_select" {
		t.Errorf("mode = %q, want window_select", st.Mode)
	}
	if st.Running != "Not running" || st.Queued != "No" {
		t.Errorf("running = %q, queued = %q", st.Running, st.Queued)
	}
}

func TestE2E_Windows(t *testing.T) {
	var wins []map[string]any
	if code := getJSON(t, "GET", "/api/windows", &wins); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
}

func TestE2E_RejectedCommands(t *testing.T) {
	tests := []struct {
		method, path string
		code         int
		errCode      string
	}{
		{"POST", "/api/watch/start", http.StatusConflict, "TRANSITION_REJECTED"},
		{"POST", "/api/reset", http.StatusConflict, "TRANSITION_REJECTED"},
		{"GET", "/api/regions", http.StatusNotFound, "NOT_FOUND"},
		{"GET", "/api/capture.png", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var e struct {
				Code string `json:"code"`
			}
			if code := getJSON(t, tt.method, tt.path, &e); code != tt.code {
				t.Errorf("status code = %d, want %d", code, tt.code)
			}
			if e.Code != tt.errCode {
				t.Errorf("code = %q, want %q", e.Code, tt.errCode)
			}
		})
	}
}

func TestE2E_Metrics(t *testing.T) {
	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{"sentinel_watching", "sentinel_match_pending"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestE2E_Health(t *testing.T) {
	client := healthpb.NewHealthClient(grpcConn)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", resp.Status)
	}

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("%s status = %v, want NOT_SERVING without a reference", healthService, resp.Status)
	}
}

func TestE2E_HealthCommand(t *testing.T) {
	cmd := exec.Command(sentinelBin, "health", "--addr", grpcAddr)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("health should exit non-zero while nothing is armed, output:\n%s", out)
	}
	if !strings.Contains(string(out), "NOT_SERVING") {
		t.Errorf("health output missing NOT_SERVING:\n%s", out)
	}
}
