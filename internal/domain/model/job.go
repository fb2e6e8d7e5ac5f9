// Package model contains domain models passed between layers.
package model

// Job is one unit of inventory data submitted for anomaly scoring.
// It is owned by exactly one job unit and discarded after processing.
type Job struct {
	Account string `json:"account"`
	Data    *Batch `json:"data"`
}

// Batch is the raw inventory payload of a job.
type Batch struct {
	// Total is the row count. A nil Total means the key was absent.
	Total   *int     `json:"total"`
	Results []Record `json:"results"`
}

// Record is one raw inventory system, keyed by fact name. Nested objects are
// addressed with dotted paths during normalization.
type Record map[string]any

// Parameters sizes the isolation forest for one job.
type Parameters struct {
	NumTrees   int `json:"num_trees"`
	SampleSize int `json:"sample_size"`
}

// Score is the detection outcome for one input row.
type Score struct {
	Index     int     `json:"index"`
	ID        string  `json:"id,omitempty"`
	Score     float64 `json:"score"`
	Anomalous bool    `json:"is_anomalous"`
	Contrast  float64 `json:"contrast,omitempty"`
}

// Result is the ordered per-row output of a detector. Its length is at most
// the number of rows in the frame it was computed on.
type Result []Score

// Anomalies returns the number of rows flagged anomalous.
func (r Result) Anomalies() int {
	n := 0
	for _, s := range r {
		if s.Anomalous {
			n++
		}
	}
	return n
}
