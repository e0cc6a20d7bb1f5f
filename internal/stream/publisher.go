// Package stream turns the shared frame source into a sequence of JPEG images.
package stream

import (
	"context"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/ayusman/kalimat/internal/capture"
	"gocv.io/x/gocv"
)

// DefaultFPS is the pace used when none is configured.
const DefaultFPS = 30

// FrameSource is the part of capture.Source the publisher needs.
type FrameSource interface {
	NextFrame() capture.Frame
	Placeholder() []byte
}

// Publisher produces JPEG frames for one consumer at a time. Each call to
// Frames starts an independent sequence over the same source.
type Publisher struct {
	source   FrameSource
	interval time.Duration
	encode   func(gocv.Mat) ([]byte, error)
}

// New creates a Publisher pacing live frames at fps. Values below 1 use DefaultFPS.
func New(source FrameSource, fps int) *Publisher {
	if fps < 1 {
		fps = DefaultFPS
	}
	return &Publisher{
		source:   source,
		interval: time.Second / time.Duration(fps),
		encode:   encodeJPEG,
	}
}

// Frames returns a lazy, unbounded sequence of JPEG frames. While the camera
// is unavailable it yields the placeholder image and waits out the backoff
// reported by the source. A live frame that fails to encode is dropped.
// The sequence ends when the consumer stops ranging or ctx is done.
func (p *Publisher) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for ctx.Err() == nil {
			frame := p.source.NextFrame()

			if !frame.Live() {
				frame.Close()
				if placeholder := p.source.Placeholder(); len(placeholder) > 0 {
					if !yield(placeholder) {
						return
					}
				}
				if !sleep(ctx, frame.Backoff) {
					return
				}
				continue
			}

			data, err := p.encode(*frame.Mat)
			frame.Close()
			if err != nil {
				log.Printf("Dropping frame: %v", err)
				continue
			}

			if !yield(data) {
				return
			}
			if !sleep(ctx, p.interval) {
				return
			}
		}
	}
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
