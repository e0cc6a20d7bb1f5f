// Package classifier maps camera frames to gesture labels.
package classifier

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalimat/internal/confirm"
)

var (
	// ErrModelUnavailable is returned when the recognizer model cannot be loaded.
	ErrModelUnavailable = errors.New("gesture recognizer model not available")
	// ErrClassification is returned when a single frame could not be classified.
	ErrClassification = errors.New("classification failed")
)

// Classifier defines the interface for gesture classification implementations.
type Classifier interface {
	// Classify returns the most likely gesture in frame and its confidence.
	// A frame without any gesture yields confirm.Unrecognized with confidence 0.
	Classify(frame *gocv.Mat) (confirm.Sample, error)

	// Close releases any resources held by the classifier.
	Close() error
}

// Config holds configuration options for the MediaPipe gesture recognizer.
type Config struct {
	// ModelPath is the gesture_recognizer.task file passed to the service.
	ModelPath string

	// ScriptPath overrides the lookup of gesture_service.py.
	ScriptPath string

	// PythonPath overrides the interpreter; a venv python is preferred.
	PythonPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/gesture_recognizer.task",
	}
}

// Sample classifies frame with c and folds every failure into a sentinel
// sample: a nil classifier reports confirm.ModelError and a failed call
// reports confirm.PredictionError, both with confidence 0.
func Sample(c Classifier, frame *gocv.Mat) (confirm.Sample, error) {
	if c == nil {
		return confirm.Sample{Label: confirm.ModelError}, ErrModelUnavailable
	}

	s, err := c.Classify(frame)
	if err != nil {
		return confirm.Sample{Label: confirm.PredictionError}, err
	}
	return s, nil
}
