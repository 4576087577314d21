// Package vision defines the face-detection capability consumed by the
// processing pipeline. The Detector interface is the port; adapters wrap
// whatever actually finds faces (an external CLI, a remote service, a fake
// in tests).
package vision

import (
	"context"
	"errors"
)

// ErrDetection is the sentinel wrapped by all detection failures.
var ErrDetection = errors.New("face detection failed")

// Mode selects the detection trade-off between speed and recall.
type Mode string

const (
	// ModeFast favors throughput over recall.
	ModeFast Mode = "fast"
	// ModeAccurate favors recall over throughput.
	ModeAccurate Mode = "accurate"
)

// IsValid returns true if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == ModeFast || m == ModeAccurate
}

// BoundingBox is a face region in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is one detected face with its detection confidence in [0, 1].
type Face struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// Detector finds faces in a video file.
type Detector interface {
	// DetectFaces scans the video at inputPath and returns the detected
	// faces. Errors wrap ErrDetection.
	DetectFaces(ctx context.Context, inputPath string, mode Mode) ([]Face, error)
}
