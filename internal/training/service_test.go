package training

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pipable/pipable/internal/storage"
)

func TestTrainPreparesDatasetRunsTrainerAndSwapsModel(t *testing.T) {
	root := t.TempDir()
	datasetPath := writeDataset(t)
	runner := &fakeRunner{createCheckpoint: true}
	backend := &fakeBackend{}
	store := &fakeStore{}

	svc := newTestService(t, root, store, runner, backend)
	summary, err := svc.Train(context.Background(), " "+datasetPath+" ")
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if summary.RunID != "2026-10-15-abcd1234" {
		t.Fatalf("RunID = %q", summary.RunID)
	}
	wantDir := filepath.Join(root, "2026-10-15-abcd1234")
	if summary.OutputDir != wantDir || summary.DatasetFile != filepath.Join(wantDir, "dataset.parquet") {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Samples != 2 {
		t.Fatalf("Samples = %d", summary.Samples)
	}
	if runner.datasetPath != summary.DatasetFile || runner.outputDir != wantDir {
		t.Fatalf("runner called with %q %q", runner.datasetPath, runner.outputDir)
	}
	wantCheckpoint := filepath.Join(wantDir, CheckpointDirName)
	if summary.Checkpoint != wantCheckpoint || backend.model != wantCheckpoint {
		t.Fatalf("checkpoint = %q, backend model = %q", summary.Checkpoint, backend.model)
	}
	if summary.DatasetObject != "training/date=2026-10-15/2026-10-15-abcd1234/dataset.parquet" {
		t.Fatalf("DatasetObject = %q", summary.DatasetObject)
	}
	if store.uploadedPath != summary.DatasetFile {
		t.Fatalf("uploaded path = %q", store.uploadedPath)
	}
	if store.uploadedMeta["run-id"] != summary.RunID || store.uploadedMeta["samples"] != "2" {
		t.Fatalf("uploaded metadata = %#v", store.uploadedMeta)
	}
}

func TestTrainLoadsDatasetFromObjectStore(t *testing.T) {
	raw, err := os.ReadFile(writeDataset(t))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	store := &fakeStore{objects: map[string]string{"datasets/sakila.jsonl": string(raw)}}
	svc := newTestService(t, t.TempDir(), store, &fakeRunner{createCheckpoint: true}, &fakeBackend{})

	summary, err := svc.Train(context.Background(), "s3://datasets/sakila.jsonl")
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if summary.Samples != 2 {
		t.Fatalf("Samples = %d", summary.Samples)
	}
}

func TestTrainRejectsObjectStorePathWithoutStore(t *testing.T) {
	svc := newTestService(t, t.TempDir(), nil, &fakeRunner{}, &fakeBackend{})
	if _, err := svc.Train(context.Background(), "s3://datasets/sakila.jsonl"); err == nil {
		t.Fatal("expected error without object store")
	}
}

func TestTrainKeepsModelWhenTrainerFails(t *testing.T) {
	backend := &fakeBackend{model: "base"}
	svc := newTestService(t, t.TempDir(), nil, &fakeRunner{err: errors.New("CUDA out of memory")}, backend)

	_, err := svc.Train(context.Background(), writeDataset(t))
	if err == nil || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("Train() error = %v", err)
	}
	if backend.model != "base" {
		t.Fatalf("model swapped to %q after failure", backend.model)
	}
}

func TestTrainFailsWithoutCheckpoint(t *testing.T) {
	backend := &fakeBackend{model: "base"}
	svc := newTestService(t, t.TempDir(), nil, &fakeRunner{}, backend)

	_, err := svc.Train(context.Background(), writeDataset(t))
	if err == nil || !strings.Contains(err.Error(), CheckpointDirName) {
		t.Fatalf("Train() error = %v", err)
	}
	if backend.model != "base" {
		t.Fatalf("model = %q", backend.model)
	}
}

func TestTrainRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{createCheckpoint: true, started: started, release: release}
	svc := newTestService(t, t.TempDir(), nil, runner, &fakeBackend{})
	datasetPath := writeDataset(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Train(context.Background(), datasetPath)
		done <- err
	}()
	<-started

	if _, err := svc.Train(context.Background(), datasetPath); !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("second Train() error = %v, want ErrTrainingInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Train() error = %v", err)
	}
}

func TestTrainRequiresDatasetPath(t *testing.T) {
	svc := newTestService(t, t.TempDir(), nil, &fakeRunner{}, &fakeBackend{})
	if _, err := svc.Train(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty dataset path")
	}
}

func TestCommandRunnerPassesDatasetAndOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}
	outputDir := t.TempDir()
	runner := CommandRunner{Args: []string{sh, "-c", `test "$1" = --dataset && test "$3" = --output && mkdir -p "$4/final_merged_checkpoint"`, "trainer"}}

	if err := runner.Run(context.Background(), "/data/dataset.parquet", outputDir); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, CheckpointDirName)); err != nil {
		t.Fatalf("checkpoint missing: %v", err)
	}
}

func TestCommandRunnerIncludesOutputTailOnFailure(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}
	runner := CommandRunner{Args: []string{sh, "-c", `echo "loss exploded" >&2; exit 3`}}
	err = runner.Run(context.Background(), "d", "o")
	if err == nil || !strings.Contains(err.Error(), "loss exploded") {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	buf := &tailBuffer{limit: 4}
	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defg"))
	if got := buf.String(); got != "defg" {
		t.Fatalf("String() = %q", got)
	}
}

func newTestService(t *testing.T, root string, store storage.ObjectStore, runner Runner, backend ModelSwapper) *Service {
	t.Helper()
	svc, err := NewService(Config{OutputRoot: root}, store, runner, backend, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	fixed := time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	svc.runID = func(now time.Time) string { return now.Format("2006-01-02") + "-abcd1234" }
	return svc
}

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sakila.jsonl")
	if err := os.WriteFile(path, []byte(sakilaJSONL), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

type fakeRunner struct {
	createCheckpoint bool
	err              error
	started          chan struct{}
	release          chan struct{}

	datasetPath string
	outputDir   string
}

func (f *fakeRunner) Run(_ context.Context, datasetPath, outputDir string) error {
	f.datasetPath = datasetPath
	f.outputDir = outputDir
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return f.err
	}
	if f.createCheckpoint {
		return os.MkdirAll(filepath.Join(outputDir, CheckpointDirName), 0o755)
	}
	return nil
}

type fakeBackend struct {
	model string
}

func (f *fakeBackend) SetModel(model string) { f.model = model }

type fakeStore struct {
	objects      map[string]string
	uploadedKey  string
	uploadedPath string
	uploadedMeta map[string]string
}

func (f *fakeStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	body, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(body))}, nil
}

func (f *fakeStore) UploadFile(_ context.Context, key, localPath string, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.uploadedKey = key
	f.uploadedPath = localPath
	f.uploadedMeta = opts.Metadata
	return storage.ObjectInfo{Key: key}, nil
}
