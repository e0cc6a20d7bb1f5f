package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalimat/internal/app"
	"github.com/ayusman/kalimat/internal/capture"
	"github.com/ayusman/kalimat/internal/classifier"
	"github.com/ayusman/kalimat/internal/config"
	"github.com/ayusman/kalimat/internal/confirm"
	"github.com/ayusman/kalimat/internal/server"
	"github.com/ayusman/kalimat/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(1500 * time.Millisecond)
	return c.now
}

// run starts one process lifetime against the database at dbPath.
func run(t *testing.T, dbPath string, clf classifier.Classifier, frame *gocv.Mat) (*app.App, *httptest.Server, *store.Store) {
	t.Helper()

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	rt := config.NewRuntime()
	if err := s.Settings().LoadRuntime(rt); err != nil {
		t.Fatalf("LoadRuntime() error = %v", err)
	}

	a := app.New(app.Config{
		Source:     capture.NewSource(capture.NewMockCamera([]*gocv.Mat{frame}, true), rt),
		Classifier: clf,
		Runtime:    rt,
		Settings:   s.Settings(),
		Sessions:   s.Sessions(),
		Now:        (&clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)}).Now,
	})
	ts := httptest.NewServer(server.New(server.Config{App: a}))
	return a, ts, s
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dbPath := filepath.Join(t.TempDir(), "kalimat.db")
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	clf := classifier.NewMockClassifier(
		confirm.Sample{Label: "I", Confidence: 0.9},
		confirm.Sample{Label: "I", Confidence: 0.9},
		confirm.Sample{Label: "Love", Confidence: 0.8},
		confirm.Sample{Label: "Love", Confidence: 0.8},
	)

	a, ts, s := run(t, dbPath, clf, &frame)
	client := ts.Client()

	t.Run("LowerRequiredConsecutive", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/settings/consecutive", "application/json", strings.NewReader(`{"consecutive": "2"}`))
		if err != nil {
			t.Fatalf("POST error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("BuildSentence", func(t *testing.T) {
		var pred struct {
			Sentence string `json:"sentence"`
		}
		for i := 0; i < 4; i++ {
			resp, err := client.Get(ts.URL + "/api/prediction")
			if err != nil {
				t.Fatalf("GET prediction error = %v", err)
			}
			json.NewDecoder(resp.Body).Decode(&pred)
			resp.Body.Close()
		}
		if pred.Sentence != "I Love" {
			t.Errorf("sentence = %q, want %q", pred.Sentence, "I Love")
		}
	})

	t.Run("LogNewestFirst", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/log")
		if err != nil {
			t.Fatalf("GET log error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Log []confirm.LogEntry `json:"log"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Log) != 2 || body.Log[0].Gesture != "Love" || body.Log[1].Gesture != "I" {
			t.Errorf("log = %+v", body.Log)
		}
	})

	session := a.Session()
	ts.Close()
	a.Close()
	s.Close()

	t.Run("RestartKeepsSettingsNotTranscript", func(t *testing.T) {
		a2, ts2, s2 := run(t, dbPath, classifier.NewMockClassifier(), &frame)
		defer func() {
			ts2.Close()
			a2.Close()
			s2.Close()
		}()

		if got := a2.Runtime().RequiredConsecutive(); got != 2 {
			t.Errorf("RequiredConsecutive() after restart = %d, want 2", got)
		}

		st := a2.Status()
		if st.Sentence != "" || st.LogEntries != 0 {
			t.Errorf("transcript survived restart: %+v", st)
		}
		if st.Latest.Gesture != app.NoPrediction {
			t.Errorf("Latest = %q, want %q", st.Latest.Gesture, app.NoPrediction)
		}

		prev, err := s2.Sessions().Get(session)
		if err != nil {
			t.Fatalf("Sessions().Get() error = %v", err)
		}
		if prev.Confirmed != 2 || prev.EndedAt == nil {
			t.Errorf("previous session = %+v, want 2 confirmed and ended", prev)
		}
	})
}
