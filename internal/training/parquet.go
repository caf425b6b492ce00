package training

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

type DatasetStats struct {
	Samples int
	// AvgChars is the mean length of a training text, a rough guide for
	// picking the trainer's sequence length.
	AvgChars float64
}

type preparedSample struct {
	Text string `parquet:"text"`
}

// WriteDatasetFile writes one row per sample with a single text column.
func WriteDatasetFile(path string, samples []Sample) (DatasetStats, error) {
	if len(samples) == 0 {
		return DatasetStats{}, fmt.Errorf("samples are required")
	}

	rows := make([]preparedSample, 0, len(samples))
	totalChars := 0
	for _, sample := range samples {
		text := sample.Text()
		totalChars += len([]rune(text))
		rows = append(rows, preparedSample{Text: text})
	}

	file, err := os.Create(path)
	if err != nil {
		return DatasetStats{}, fmt.Errorf("create dataset file: %w", err)
	}
	writer := parquet.NewGenericWriter[preparedSample](file)
	if _, err := writer.Write(rows); err != nil {
		_ = file.Close()
		return DatasetStats{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = file.Close()
		return DatasetStats{}, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return DatasetStats{}, fmt.Errorf("close dataset file: %w", err)
	}

	return DatasetStats{
		Samples:  len(rows),
		AvgChars: float64(totalChars) / float64(len(rows)),
	}, nil
}
