// Package report records what a CLI run read, wrote and counted, as YAML.
package report

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geojoin/internal/buffer"
	"github.com/sells-group/geojoin/internal/join"
)

// Report describes one run.
type Report struct {
	RunID     string            `yaml:"run_id"`
	Algorithm string            `yaml:"algorithm"`
	StartedAt time.Time         `yaml:"started_at"`
	Finished  time.Time         `yaml:"finished_at,omitempty"`
	Inputs    map[string]string `yaml:"inputs"`
	Output    string            `yaml:"output"`
	Settings  map[string]any    `yaml:"settings,omitempty"`
	Join      *join.Result      `yaml:"join,omitempty"`
	Buffer    *buffer.Result    `yaml:"buffer,omitempty"`
	Error     string            `yaml:"error,omitempty"`
}

// New starts a report with a fresh run ID.
func New(algorithm string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Algorithm: algorithm,
		StartedAt: time.Now().UTC(),
		Inputs:    map[string]string{},
	}
}

// Finish stamps the end time and records err, if any.
func (r *Report) Finish(err error) {
	r.Finished = time.Now().UTC()
	if err != nil {
		r.Error = err.Error()
	}
}

// Marshal encodes the report as YAML.
func (r *Report) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal")
	}
	return data, nil
}

// Write saves the report to path.
func (r *Report) Write(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	return &r, nil
}
