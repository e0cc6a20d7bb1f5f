package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/kalimat/internal/app"
	"github.com/ayusman/kalimat/internal/capture"
	"github.com/ayusman/kalimat/internal/classifier"
	"github.com/ayusman/kalimat/internal/config"
	"github.com/ayusman/kalimat/internal/confirm"
	"github.com/ayusman/kalimat/internal/emitter"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(2 * time.Second)
	return c.now
}

func newTestApp(t *testing.T, withModel bool, samples ...confirm.Sample) *app.App {
	t.Helper()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	rt := config.NewRuntime()
	cfg := app.Config{
		Source:    capture.NewSource(capture.NewMockCamera([]*gocv.Mat{&frame}, true), rt),
		Runtime:   rt,
		StreamFPS: 100,
		Now:       (&stepClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.Local)}).Now,
	}
	if withModel {
		cfg.Classifier = classifier.NewMockClassifier(samples...)
	}

	a := app.New(cfg)
	t.Cleanup(func() { a.Close() })
	return a
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s decode error = %v", url, err)
	}
}

func TestAPI_TranscriptWorkflow(t *testing.T) {
	a := newTestApp(t, true, confirm.Sample{Label: "Hello", Confidence: 0.93})
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()
	client := ts.Client()

	// 1. Three agreeing predictions confirm the word
	var pred struct {
		Gesture    string  `json:"gesture"`
		Confidence float64 `json:"confidence"`
		Sentence   string  `json:"sentence"`
	}
	for i := 0; i < 3; i++ {
		getJSON(t, client, ts.URL+"/api/prediction", &pred)
	}
	if pred.Gesture != "Hello" || pred.Confidence != 0.93 || pred.Sentence != "Hello" {
		t.Fatalf("prediction = %+v", pred)
	}

	// 2. The log has one entry stamped with the confirming evaluation
	var logResp struct {
		Log []confirm.LogEntry `json:"log"`
	}
	getJSON(t, client, ts.URL+"/api/log", &logResp)
	if len(logResp.Log) != 1 || logResp.Log[0].Gesture != "Hello" || logResp.Log[0].Timestamp != "09:00:08" {
		t.Fatalf("log = %+v", logResp.Log)
	}

	// 3. Clear the sentence
	resp, err := client.Post(ts.URL+"/api/sentence/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("POST clear error = %v", err)
	}
	resp.Body.Close()

	var st app.Status
	getJSON(t, client, ts.URL+"/api/status", &st)
	if st.Sentence != "" || st.LogEntries != 1 {
		t.Errorf("status after clear = %+v", st)
	}

	// 4. Change a setting and read it back
	resp, err = client.Post(ts.URL+"/api/settings/consecutive", "application/json", bytes.NewBufferString(`{"consecutive": 2}`))
	if err != nil {
		t.Fatalf("POST consecutive error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST consecutive status = %d", resp.StatusCode)
	}

	var snap config.Snapshot
	getJSON(t, client, ts.URL+"/api/settings", &snap)
	if snap.Consecutive != 2 {
		t.Errorf("consecutive = %d, want 2", snap.Consecutive)
	}
}

func TestAPI_StreamRequiresModel(t *testing.T) {
	a := newTestApp(t, false)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestAPI_StreamServesMJPEG(t *testing.T) {
	a := newTestApp(t, true)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	if line != "--frame\r\n" {
		t.Errorf("first line = %q, want boundary", line)
	}
	line, _ = r.ReadString('\n')
	if line != "Content-Type: image/jpeg\r\n" {
		t.Errorf("part header = %q", line)
	}
	line, _ = r.ReadString('\n')
	if !strings.HasPrefix(line, "Content-Length: ") {
		t.Errorf("part header = %q, want Content-Length", line)
	}
}

func TestAPI_TranscriptWebSocket(t *testing.T) {
	a := newTestApp(t, true, confirm.Sample{Label: "Thanks", Confidence: 0.8})
	srv := New(Config{App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/transcript/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		a.Predict()
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev emitter.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event error = %v", err)
	}
	if ev.Type != emitter.EventConfirmed || ev.Word != "Thanks" || ev.Session != a.Session() {
		t.Errorf("event = %+v", ev)
	}

	a.ClearTranscript()
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event error = %v", err)
	}
	if ev.Type != emitter.EventCleared {
		t.Errorf("event type = %q, want cleared", ev.Type)
	}
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	srv := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
