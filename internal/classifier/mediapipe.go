package classifier

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalimat/internal/confirm"
)

// idleTimeout stops the Python service after a period without requests.
const idleTimeout = 30 * time.Second

// MediaPipeClassifier implements Classifier using a Python MediaPipe
// GestureRecognizer subprocess.
//
// Each request is a 4-byte big-endian length followed by a JPEG image on the
// service's stdin. The service answers with one JSON line:
//
//	{"gestures": [{"category": "Thumb_Up", "score": 0.93}], "error": ""}
type MediaPipeClassifier struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewMediaPipeClassifier creates a new MediaPipe classifier.
// The Python process is started lazily on first classification. It fails
// with ErrModelUnavailable when the service script or model file is missing.
func NewMediaPipeClassifier(config Config) (*MediaPipeClassifier, error) {
	script := config.ScriptPath
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%w: gesture_service.py not found", ErrModelUnavailable)
	}

	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	return &MediaPipeClassifier{
		config: config,
		script: script,
	}, nil
}

// Classify sends one frame to the recognizer and returns its top gesture.
func (c *MediaPipeClassifier) Classify(frame *gocv.Mat) (confirm.Sample, error) {
	if frame == nil || frame.Empty() {
		return confirm.Sample{}, fmt.Errorf("%w: empty frame", ErrClassification)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureStarted(); err != nil {
		return confirm.Sample{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return confirm.Sample{}, fmt.Errorf("%w: encode frame: %v", ErrClassification, err)
	}
	defer buf.Close()

	resp, err := c.roundTrip(buf.GetBytes())
	if err != nil {
		// The pipe is in an unknown state; restart on the next call.
		c.shutdown()
		return confirm.Sample{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	c.lastUsed = time.Now()
	c.resetIdleTimer()

	return resp.top()
}

// Close shuts down the Python process.
func (c *MediaPipeClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown()
}

func (c *MediaPipeClassifier) roundTrip(data []byte) (*serviceResponse, error) {
	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := c.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := c.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := c.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseResponse([]byte(line))
}

func (c *MediaPipeClassifier) ensureStarted() error {
	if c.started {
		return nil
	}

	pythonPath := c.config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	c.cmd = exec.Command(pythonPath, c.script, "--model", c.config.ModelPath)

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	c.cmd.Stderr = os.Stderr

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start gesture service: %w", err)
	}

	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)
	c.started = true
	c.lastUsed = time.Now()

	log.Printf("Gesture service started (pid %d)", c.cmd.Process.Pid)
	return nil
}

func (c *MediaPipeClassifier) shutdown() error {
	if !c.started {
		return nil
	}

	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}

	if c.stdin != nil {
		c.stdin.Close()
	}

	err := c.cmd.Wait()
	c.started = false
	c.cmd = nil
	c.stdin = nil
	c.stdout = nil

	return err
}

func (c *MediaPipeClassifier) resetIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(idleTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if time.Since(c.lastUsed) >= idleTimeout {
			c.shutdown()
		}
	})
}

// serviceResponse is the JSON line written by the Python service.
type serviceResponse struct {
	Gestures []serviceGesture `json:"gestures"`
	Error    string           `json:"error,omitempty"`
}

type serviceGesture struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

func parseResponse(line []byte) (*serviceResponse, error) {
	var resp serviceResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// top returns the first, highest ranked gesture of the response.
func (r *serviceResponse) top() (confirm.Sample, error) {
	if r.Error != "" {
		return confirm.Sample{}, fmt.Errorf("%w: %s", ErrClassification, r.Error)
	}
	if len(r.Gestures) == 0 || r.Gestures[0].Category == "" {
		return confirm.Sample{Label: confirm.Unrecognized}, nil
	}
	g := r.Gestures[0]
	return confirm.Sample{Label: g.Category, Confidence: g.Score}, nil
}

func findServiceScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/gesture_service.py",
		"../scripts/gesture_service.py",
		filepath.Join(execDir, "scripts/gesture_service.py"),
		filepath.Join(os.Getenv("HOME"), ".kalimat/scripts/gesture_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".kalimat/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
