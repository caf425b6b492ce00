// Package training prepares text-to-SQL fine-tuning data and drives an
// external trainer, swapping the served model once a run produces a merged
// checkpoint.
package training

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pipable/pipable/internal/prompt"
)

// Sample is one line of a JSON lines training dataset.
type Sample struct {
	Context  string `json:"context"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Text is the string the model is trained on: the inference prompt followed
// by the expected SQL.
func (s Sample) Text() string {
	return prompt.Format(s.Context, s.Question) + " " + s.Answer
}

// ReadSamples decodes JSON lines. Blank lines are skipped.
func ReadSamples(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	samples := make([]Sample, 0)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var sample Sample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			return nil, fmt.Errorf("decode sample on line %d: %w", line, err)
		}
		if strings.TrimSpace(sample.Question) == "" || strings.TrimSpace(sample.Answer) == "" {
			return nil, fmt.Errorf("sample on line %d needs question and answer", line)
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return samples, nil
}
