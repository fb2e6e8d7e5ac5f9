package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/okian/radworker/internal/domain/model"
)

// LoadJobs reads every file. A file holds either one job object or an array
// of jobs.
func LoadJobs(paths []string) ([]Source, error) {
	var out []Source
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadJobs, err)
		}
		jobs, err := decodeJobs(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrReadJobs, path, err)
		}
		for i, job := range jobs {
			out = append(out, Source{File: path, Index: i, Job: job})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoJobs
	}
	return out, nil
}

func decodeJobs(data []byte) ([]model.Job, error) {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var jobs []model.Job
		if err := json.Unmarshal(data, &jobs); err != nil {
			return nil, err
		}
		return jobs, nil
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return []model.Job{job}, nil
}
