package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/kick-pulse/config"
	"github.com/onnwee/kick-pulse/session"
	"github.com/onnwee/kick-pulse/telemetry"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	telemetry.Init()
	sess := session.New(&config.Options{Channel: "somechannel"}, nil, nil, nil, nil, 42, nil)
	ts := httptest.NewServer(NewMux(sess))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("healthz body = %q", body)
	}
}

func TestStatus(t *testing.T) {
	ts := newServer(t)
	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("status content type = %q", ct)
	}
	var st struct {
		SessionID string `json:"session_id"`
		Channel   string `json:"channel"`
		Chatroom  int64  `json:"chatroom_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Channel != "somechannel" || st.Chatroom != 42 || st.SessionID == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusRecorderPassesThrough(t *testing.T) {
	ts := newServer(t)
	resp, err := http.Get(ts.URL + "/no-such-route")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	ts := newServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Error("metrics body is empty")
	}
}
