package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Compile-time check that CommandDetector implements Detector.
var _ Detector = (*CommandDetector)(nil)

// CommandDetector shells out to an external detector binary that prints a
// JSON report on stdout:
//
//	{"faces": [{"box": {"x": 10, "y": 20, "width": 64, "height": 64}, "confidence": 0.97}]}
//
// The binary is expected to accept `--mode <fast|accurate> <input>`.
type CommandDetector struct {
	binPath string
}

// NewCommandDetector creates a CommandDetector. If binPath is empty it
// defaults to "penguin-detect" (found via PATH).
func NewCommandDetector(binPath string) *CommandDetector {
	if binPath == "" {
		binPath = "penguin-detect"
	}
	return &CommandDetector{binPath: binPath}
}

type detectReport struct {
	Faces []Face `json:"faces"`
}

// DetectFaces runs the detector binary and decodes its report.
func (d *CommandDetector) DetectFaces(ctx context.Context, inputPath string, mode Mode) ([]Face, error) {
	if !mode.IsValid() {
		mode = ModeFast
	}

	cmd := exec.CommandContext(ctx, d.binPath, "--mode", string(mode), inputPath) // #nosec G204 - binary path comes from configuration
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v (stderr: %s)", ErrDetection, err, stderr.String())
	}

	var report detectReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return nil, fmt.Errorf("%w: decode report: %v", ErrDetection, err)
	}

	return report.Faces, nil
}
