package classifier

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalimat/internal/confirm"
)

// MockClassifier is a test implementation of the Classifier interface.
// It allows tests to control the classification results.
type MockClassifier struct {
	mu      sync.Mutex
	samples []confirm.Sample
	index   int
	err     error
	calls   int
	closed  bool
}

// NewMockClassifier creates a MockClassifier that returns the given samples
// in order, repeating the last one once the sequence is exhausted.
func NewMockClassifier(samples ...confirm.Sample) *MockClassifier {
	return &MockClassifier{samples: samples}
}

// SetSamples replaces the sample sequence and restarts it.
func (m *MockClassifier) SetSamples(samples ...confirm.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = samples
	m.index = 0
}

// SetError sets the error that will be returned by Classify.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Classify was invoked.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Classify returns the next pre-configured sample or error.
func (m *MockClassifier) Classify(frame *gocv.Mat) (confirm.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return confirm.Sample{}, m.err
	}
	if len(m.samples) == 0 {
		return confirm.Sample{Label: confirm.Unrecognized}, nil
	}

	s := m.samples[m.index]
	if m.index < len(m.samples)-1 {
		m.index++
	}
	return s, nil
}

// Close marks the mock as closed.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockClassifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
