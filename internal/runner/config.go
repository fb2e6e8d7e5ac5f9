package runner

import (
	"time"

	service "github.com/okian/radworker/internal/app"
	"github.com/okian/radworker/internal/domain/model"
)

// Config holds configuration for one run.
type Config struct {
	Files       []string    // Job files to read
	NextService string      // Delivery target
	Identity    string      // Identity header sent with every job
	Env         service.Env // Per-unit environment
}

// Source is a job together with the file it came from.
type Source struct {
	File  string
	Index int
	Job   model.Job
}

// Stats holds run statistics.
type Stats struct {
	JobsLoaded int
	Succeeded  int
	Failed     int
	Pending    int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
