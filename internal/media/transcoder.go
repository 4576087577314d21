// Package media provides the transcoding capability that renders the
// privacy mask over detected faces. The Transcoder interface is the port;
// FFmpegTranscoder is the CLI adapter.
package media

import (
	"context"
	"errors"

	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// ErrTranscode is the sentinel wrapped by all transcoding failures.
var ErrTranscode = errors.New("transcode failed")

// BlurIntensity selects how aggressively face regions are obscured.
type BlurIntensity string

const (
	// BlurLight is a mild blur that keeps faces recognizable up close.
	BlurLight BlurIntensity = "light"
	// BlurMedium is the default blur strength.
	BlurMedium BlurIntensity = "medium"
	// BlurHeavy fully obscures face regions.
	BlurHeavy BlurIntensity = "heavy"
)

// IsValid returns true if the intensity is a supported value.
func (b BlurIntensity) IsValid() bool {
	return b == BlurLight || b == BlurMedium || b == BlurHeavy
}

// ProgressFunc receives stage progress in percent (0-100). Implementations
// must not block; the adapter calls it from its output-reading goroutine.
type ProgressFunc func(percent int)

// Transcoder renders the blur mask over the given face regions and writes
// the processed video.
type Transcoder interface {
	// Blur processes inputPath and returns the absolute output path.
	// onProgress may be nil. Errors wrap ErrTranscode.
	Blur(ctx context.Context, inputPath string, faces []vision.Face, intensity BlurIntensity, onProgress ProgressFunc) (string, error)
}
