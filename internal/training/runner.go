package training

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Runner fine-tunes a model on a prepared dataset and leaves the merged
// checkpoint under outputDir.
type Runner interface {
	Run(ctx context.Context, datasetPath, outputDir string) error
}

// CommandRunner runs an external trainer as
// <Args...> --dataset <datasetPath> --output <outputDir>.
type CommandRunner struct {
	Args   []string
	Logger *slog.Logger
}

func (r CommandRunner) Run(ctx context.Context, datasetPath, outputDir string) error {
	if len(r.Args) == 0 {
		return fmt.Errorf("trainer command is not configured")
	}
	args := append(append([]string{}, r.Args[1:]...), "--dataset", datasetPath, "--output", outputDir)
	cmd := exec.CommandContext(ctx, r.Args[0], args...)
	output := &tailBuffer{limit: 4096}
	cmd.Stdout = output
	cmd.Stderr = output

	if r.Logger != nil {
		r.Logger.InfoContext(ctx, "starting trainer",
			slog.String("command", strings.Join(cmd.Args, " ")),
		)
	}
	if err := cmd.Run(); err != nil {
		if tail := strings.TrimSpace(output.String()); tail != "" {
			return fmt.Errorf("trainer %s: %w: %s", r.Args[0], err, tail)
		}
		return fmt.Errorf("trainer %s: %w", r.Args[0], err)
	}
	if r.Logger != nil {
		r.Logger.DebugContext(ctx, "trainer finished", slog.String("output_tail", output.String()))
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
