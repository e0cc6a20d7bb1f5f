package capture

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// PlaceholderText is drawn on the frame shown while the camera is unavailable.
const PlaceholderText = "Camera Unavailable"

// RenderPlaceholder draws text centred in red on a black width x height
// frame and returns it JPEG-encoded.
func RenderPlaceholder(width, height int, text string) ([]byte, error) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
	defer frame.Close()

	const (
		font      = gocv.FontHersheySimplex
		scale     = 2.0
		thickness = 3
	)

	size := gocv.GetTextSize(text, font, scale, thickness)
	org := image.Point{
		X: (width - size.X) / 2,
		Y: (height + size.Y) / 2,
	}
	red := color.RGBA{R: 255, A: 255}
	gocv.PutTextWithParams(&frame, text, org, font, scale, red, thickness, gocv.LineAA, false)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
