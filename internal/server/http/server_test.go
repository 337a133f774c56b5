package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/notiq/internal/config"
	"github.com/rzbill/notiq/internal/runtime"
	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	srv := New(rt, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv, "http://" + srv.Addr()
}

func TestHealthz(t *testing.T) {
	_, base := startTestServer(t)
	resp, err := http.Get(base + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusReportsQueue(t *testing.T) {
	_, base := startTestServer(t)
	resp, err := http.Get(base + "/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		MaxPages int64 `json:"maxPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.MaxPages != cfgpkg.Default().MaxQueuePages {
		t.Fatalf("maxPages = %d", st.MaxPages)
	}
}

func TestNotifyValidation(t *testing.T) {
	_, base := startTestServer(t)

	oversized := fmt.Sprintf(`{"channel":%q,"payload":"x"}`, strings.Repeat("c", 300))
	resp, err := http.Post(base+"/v1/notify", "application/json", bytes.NewBufferString(oversized))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(base+"/v1/notify", "application/json", bytes.NewBufferString(`{"channel":"ok","payload":"x"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}
}

func TestListenStreamReceivesNotify(t *testing.T) {
	_, base := startTestServer(t)

	req, err := http.NewRequest(http.MethodGet, base+"/v1/listen?channels=orders", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listen status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	post, err := http.Post(base+"/v1/notify", "application/json",
		bytes.NewBufferString(`{"channel":"orders","payload":"created:7"}`))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("notify status %d", post.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Channel != "orders" || ev.Payload != "created:7" {
			t.Fatalf("event = %+v", ev)
		}
		return
	}
	t.Fatalf("stream ended without event: %v", scanner.Err())
}

func TestChannelsEndpoint(t *testing.T) {
	_, base := startTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, base+"/v1/listen?channels=jobs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer resp.Body.Close()

	cresp, err := http.Get(base + "/v1/channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	defer cresp.Body.Close()
	var body struct {
		Channels map[string]int `json:"channels"`
	}
	if err := json.NewDecoder(cresp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Channels["jobs"] != 1 {
		t.Fatalf("channels = %v", body.Channels)
	}
}
