package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Renderer produces a video file from a job's input props and returns the
// path of the artifact. Implementations own their own timeouts beyond
// whatever deadline the context carries.
type Renderer interface {
	Render(ctx context.Context, jobID string, inputProps map[string]interface{}) (string, error)
}

// Remotion renders through the Remotion CLI against a running bundle.
type Remotion struct {
	serveURL      string
	compositionID string
	concurrency   int
	outputDir     string
	logger        *zap.Logger
}

func NewRemotion(serveURL, compositionID string, concurrency int, logger *zap.Logger) *Remotion {
	return &Remotion{
		serveURL:      serveURL,
		compositionID: compositionID,
		concurrency:   concurrency,
		outputDir:     os.TempDir(),
		logger:        logger,
	}
}

func (r *Remotion) Render(ctx context.Context, jobID string, inputProps map[string]interface{}) (string, error) {
	props, err := json.Marshal(inputProps)
	if err != nil {
		return "", fmt.Errorf("encode input props: %w", err)
	}

	outputPath := filepath.Join(r.outputDir, fmt.Sprintf("video-%s.mp4", jobID))

	cmd := exec.CommandContext(ctx, "npx", "remotion", "render",
		r.serveURL,
		r.compositionID,
		outputPath,
		"--codec=h264",
		"--props="+string(props),
		fmt.Sprintf("--concurrency=%d", r.concurrency),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Info("rendering video",
		zap.String("job_id", jobID),
		zap.String("composition", r.compositionID),
		zap.String("output", outputPath),
	)

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		if msg := tail(stderr.String()); msg != "" {
			return "", fmt.Errorf("render failed: %s", msg)
		}
		return "", fmt.Errorf("render failed: %w", err)
	}

	return outputPath, nil
}

// tail returns the last non-empty line of CLI output, which is where the
// Remotion renderer prints its failure reason.
func tail(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
