package capture

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Backoffs suggested to callers after a placeholder frame.
const (
	// OpenBackoff follows a failed attempt to open the device.
	OpenBackoff = 2 * time.Second
	// ReadBackoff follows a read failure on an open device.
	ReadBackoff = 1 * time.Second
)

// State is the device state of a Source.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateReady
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status describes the frame returned by NextFrame.
type Status int

const (
	// StatusLive carries a frame read from the device.
	StatusLive Status = iota
	// StatusUnavailable means the device could not be opened.
	StatusUnavailable
	// StatusReadFailed means the device was open but the read failed; it has been released.
	StatusReadFailed
)

// Frame is the result of one NextFrame call.
type Frame struct {
	// Mat is the live image; nil unless Status is StatusLive.
	// The caller owns it and must Close it.
	Mat     *gocv.Mat
	Status  Status
	Backoff time.Duration
	Err     error
}

// Live reports whether the frame carries a camera image.
func (f Frame) Live() bool {
	return f.Status == StatusLive && f.Mat != nil
}

// Close releases the live image, if any.
func (f Frame) Close() {
	if f.Mat != nil {
		f.Mat.Close()
	}
}

// Mirrorer reports whether frames should be flipped horizontally.
type Mirrorer interface {
	Mirror() bool
}

// Source owns the camera and hides its failures from callers: when the
// device is gone it hands out a placeholder and reopens on the next call.
// It is safe for concurrent use by the stream and the evaluate path.
type Source struct {
	camera      Camera
	mirror      Mirrorer
	placeholder []byte

	// OpenBackoff and ReadBackoff are returned in Frame.Backoff.
	OpenBackoff time.Duration
	ReadBackoff time.Duration

	// mu serializes the device transitions. state is written only under mu
	// but read without it, so State reports opening while Open is blocked.
	mu     sync.Mutex
	state  atomic.Int32
	warned bool
}

// NewSource creates a Source around camera. mirror may be nil, in which case
// frames are never flipped. The device is not opened until Open or NextFrame.
func NewSource(camera Camera, mirror Mirrorer) *Source {
	placeholder, err := RenderPlaceholder(PreferredWidth, PreferredHeight, PlaceholderText)
	if err != nil {
		log.Printf("Failed to render placeholder frame: %v", err)
	}

	return &Source{
		camera:      camera,
		mirror:      mirror,
		placeholder: placeholder,
		OpenBackoff: OpenBackoff,
		ReadBackoff: ReadBackoff,
	}
}

// Placeholder returns the JPEG shown while the camera is unavailable.
func (s *Source) Placeholder() []byte {
	return s.placeholder
}

// State returns the current device state. It does not wait for an open
// in progress.
func (s *Source) State() State {
	return State(s.state.Load())
}

func (s *Source) setState(st State) {
	s.state.Store(int32(st))
}

// Open acquires the device. It is a no-op when already ready.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open()
}

func (s *Source) open() error {
	if s.State() == StateReady {
		return nil
	}

	s.setState(StateOpening)
	if err := s.camera.Open(); err != nil {
		s.setState(StateClosed)
		if !s.warned {
			log.Printf("Camera unavailable, will keep retrying: %v", err)
			s.warned = true
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.setState(StateReady)
	s.warned = false
	log.Println("Camera opened")
	return nil
}

// NextFrame returns the next camera frame, reopening the device first if
// needed. When no frame can be had it returns a non-live Frame with the
// backoff the caller should wait before trying again.
func (s *Source) NextFrame() Frame {
	s.mu.Lock()

	if err := s.open(); err != nil {
		s.mu.Unlock()
		return Frame{Status: StatusUnavailable, Backoff: s.OpenBackoff, Err: err}
	}

	mat, err := s.camera.ReadFrame()
	if err != nil {
		s.release()
		s.mu.Unlock()
		log.Printf("Failed to read frame, camera released: %v", err)
		return Frame{
			Status:  StatusReadFailed,
			Backoff: s.ReadBackoff,
			Err:     fmt.Errorf("%w: %v", ErrDeviceUnavailable, err),
		}
	}
	s.mu.Unlock()

	if s.mirror != nil && s.mirror.Mirror() {
		flipped := gocv.NewMat()
		gocv.Flip(*mat, &flipped, 1)
		mat.Close()
		mat = &flipped
	}

	return Frame{Mat: mat, Status: StatusLive}
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

// release moves to StateClosed and closes the device. Callers hold mu.
func (s *Source) release() error {
	if s.State() == StateClosed {
		return nil
	}
	s.setState(StateClosed)
	return s.camera.Close()
}
