package classifier

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/kalimat/internal/confirm"
)

func TestSample_NilClassifier(t *testing.T) {
	s, err := Sample(nil, nil)

	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
	if s.Label != confirm.ModelError || s.Confidence != 0 {
		t.Errorf("Sample = %+v, want ModelError/0", s)
	}
}

func TestSample_ClassificationFailure(t *testing.T) {
	m := NewMockClassifier()
	m.SetError(ErrClassification)

	s, err := Sample(m, nil)

	if !errors.Is(err, ErrClassification) {
		t.Errorf("error = %v, want ErrClassification", err)
	}
	if s.Label != confirm.PredictionError || s.Confidence != 0 {
		t.Errorf("Sample = %+v, want PredictionError/0", s)
	}
}

func TestSample_Success(t *testing.T) {
	m := NewMockClassifier(confirm.Sample{Label: "Thumb_Up", Confidence: 0.8})

	s, err := Sample(m, nil)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if s.Label != "Thumb_Up" || s.Confidence != 0.8 {
		t.Errorf("Sample = %+v, want Thumb_Up/0.8", s)
	}
}

func TestMockClassifier_Sequence(t *testing.T) {
	m := NewMockClassifier(
		confirm.Sample{Label: "A", Confidence: 0.9},
		confirm.Sample{Label: "B", Confidence: 0.8},
	)

	want := []string{"A", "B", "B"}
	for i, w := range want {
		s, err := m.Classify(nil)
		if err != nil {
			t.Fatalf("Classify() #%d error = %v", i, err)
		}
		if s.Label != w {
			t.Errorf("Classify() #%d = %q, want %q", i, s.Label, w)
		}
	}
	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}

	m.Close()
	if !m.Closed() {
		t.Error("Closed() should be true after Close()")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		want      confirm.Sample
		wantErr   error
		parseFail bool
	}{
		{
			name: "top gesture",
			line: `{"gestures": [{"category": "Open_Palm", "score": 0.91}, {"category": "None", "score": 0.05}]}`,
			want: confirm.Sample{Label: "Open_Palm", Confidence: 0.91},
		},
		{
			name: "no gesture",
			line: `{"gestures": []}`,
			want: confirm.Sample{Label: confirm.Unrecognized},
		},
		{
			name:    "service error",
			line:    `{"gestures": [], "error": "bad image"}`,
			wantErr: ErrClassification,
		},
		{
			name:      "malformed",
			line:      `not json`,
			parseFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseResponse([]byte(tt.line))
			if tt.parseFail {
				if err == nil {
					t.Fatal("parseResponse() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResponse() error = %v", err)
			}

			got, err := resp.top()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("top() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("top() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("top() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewMediaPipeClassifier_MissingModel(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "gesture_service.py")
	if err := os.WriteFile(script, []byte("# stub\n"), 0644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	_, err := NewMediaPipeClassifier(Config{
		ScriptPath: script,
		ModelPath:  filepath.Join(dir, "missing.task"),
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestNewMediaPipeClassifier_Available(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "gesture_service.py")
	model := filepath.Join(dir, "gesture_recognizer.task")
	for _, p := range []string{script, model} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}

	c, err := NewMediaPipeClassifier(Config{ScriptPath: script, ModelPath: model})
	if err != nil {
		t.Fatalf("NewMediaPipeClassifier() error = %v", err)
	}

	// The service is started lazily, so closing an unused classifier is a no-op.
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
