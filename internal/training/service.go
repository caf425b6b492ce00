package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipable/pipable/internal/observability"
	"github.com/pipable/pipable/internal/storage"
)

const (
	datasetFileName = "dataset.parquet"
	// CheckpointDirName is where the trainer must leave the merged model.
	CheckpointDirName = "final_merged_checkpoint"
)

var ErrTrainingInProgress = errors.New("training already in progress")

// ModelSwapper is the serving backend whose model is replaced after a run.
type ModelSwapper interface {
	SetModel(model string)
}

type Config struct {
	OutputRoot string
}

type Summary struct {
	RunID         string
	OutputDir     string
	DatasetFile   string
	DatasetObject string
	Samples       int
	AvgChars      float64
	Checkpoint    string
	Duration      time.Duration
}

// Service runs one training cycle at a time. A call made while another run
// is active fails fast with ErrTrainingInProgress.
type Service struct {
	cfg     Config
	store   storage.ObjectStore
	runner  Runner
	backend ModelSwapper
	logger  *slog.Logger
	now     func() time.Time
	runID   func(time.Time) string

	mu sync.Mutex
}

// NewService wires a training service. store may be nil, in which case s3://
// datasets are rejected and prepared files stay local.
func NewService(cfg Config, store storage.ObjectStore, runner Runner, backend ModelSwapper, logger *slog.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.OutputRoot) == "" {
		return nil, fmt.Errorf("output root is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("model backend is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		backend: backend,
		logger:  logger,
		now:     time.Now,
		runID:   newRunID,
	}, nil
}

func newRunID(now time.Time) string {
	return now.Format("2006-01-02") + "-" + uuid.NewString()[:8]
}

// Train prepares datasetPath, runs the trainer and points the backend at the
// new checkpoint. datasetPath is a local file or s3://<key>.
func (s *Service) Train(ctx context.Context, datasetPath string) (Summary, error) {
	if !s.mu.TryLock() {
		observability.IncrementTrainRun("rejected")
		return Summary{}, ErrTrainingInProgress
	}
	defer s.mu.Unlock()

	summary, err := s.train(ctx, strings.TrimSpace(datasetPath))
	if err != nil {
		observability.IncrementTrainRun("error")
		s.logger.ErrorContext(ctx, "training run failed",
			slog.String("run_id", summary.RunID),
			slog.String("dataset_path", datasetPath),
			slog.String("error", err.Error()),
		)
		return summary, err
	}
	observability.IncrementTrainRun("success")
	s.logger.InfoContext(ctx, "training run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("samples", summary.Samples),
		slog.String("checkpoint", summary.Checkpoint),
		slog.String("duration", summary.Duration.String()),
	)
	return summary, nil
}

func (s *Service) train(ctx context.Context, datasetPath string) (Summary, error) {
	if datasetPath == "" {
		return Summary{}, fmt.Errorf("dataset path is required")
	}
	started := s.now()
	summary := Summary{RunID: s.runID(started)}

	samples, err := s.loadSamples(ctx, datasetPath)
	if err != nil {
		return summary, err
	}
	if len(samples) == 0 {
		return summary, fmt.Errorf("dataset %s has no samples", datasetPath)
	}

	summary.OutputDir = filepath.Join(s.cfg.OutputRoot, summary.RunID)
	if err := os.MkdirAll(summary.OutputDir, 0o755); err != nil {
		return summary, fmt.Errorf("create output dir: %w", err)
	}
	summary.DatasetFile = filepath.Join(summary.OutputDir, datasetFileName)
	stats, err := WriteDatasetFile(summary.DatasetFile, samples)
	if err != nil {
		return summary, err
	}
	summary.Samples = stats.Samples
	summary.AvgChars = stats.AvgChars

	if s.store != nil {
		key, err := storage.BuildTrainingArtifactKey(summary.RunID, datasetFileName, started)
		if err != nil {
			return summary, err
		}
		opts := storage.PutOptions{Metadata: map[string]string{
			"run-id":  summary.RunID,
			"samples": strconv.Itoa(summary.Samples),
		}}
		if _, err := s.store.UploadFile(ctx, key, summary.DatasetFile, opts); err != nil {
			return summary, err
		}
		summary.DatasetObject = key
	}

	if err := s.runner.Run(ctx, summary.DatasetFile, summary.OutputDir); err != nil {
		return summary, err
	}

	checkpoint := filepath.Join(summary.OutputDir, CheckpointDirName)
	info, err := os.Stat(checkpoint)
	if err != nil {
		return summary, fmt.Errorf("trainer did not produce %s: %w", CheckpointDirName, err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("%s is not a directory", checkpoint)
	}
	summary.Checkpoint = checkpoint
	s.backend.SetModel(checkpoint)
	summary.Duration = s.now().Sub(started)
	return summary, nil
}

func (s *Service) loadSamples(ctx context.Context, datasetPath string) ([]Sample, error) {
	var reader io.ReadCloser
	if key, ok := storage.KeyFromURI(datasetPath); ok {
		if s.store == nil {
			return nil, fmt.Errorf("dataset %s needs an object store, none is configured", datasetPath)
		}
		info, err := s.store.Stat(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("stat dataset %s: %w", datasetPath, err)
		}
		s.logger.DebugContext(ctx, "loading dataset from object store",
			slog.String("key", info.Key),
			slog.Int64("size", info.Size),
		)
		object, err := s.store.Open(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("open dataset %s: %w", datasetPath, err)
		}
		reader = object
	} else {
		file, err := os.Open(datasetPath)
		if err != nil {
			return nil, fmt.Errorf("open dataset %s: %w", datasetPath, err)
		}
		reader = file
	}
	defer func() { _ = reader.Close() }()
	return ReadSamples(reader)
}
