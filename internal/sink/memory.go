package sink

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geojoin/internal/feature"
)

// Memory keeps everything it receives, for callers that post-process
// results in process.
type Memory struct {
	Layer   Layer
	Records []feature.Record
	Created bool
	Closed  bool
	Aborted bool
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Create implements Sink.
func (m *Memory) Create(_ context.Context, layer Layer) error {
	if m.Created {
		return eris.New("sink: memory layer already created")
	}
	m.Layer = layer
	m.Created = true
	return nil
}

// Append implements Sink.
func (m *Memory) Append(_ context.Context, rec feature.Record) error {
	if !m.Created || m.Closed {
		return eris.New("sink: memory layer is not open")
	}
	if len(rec.Values) != len(m.Layer.Schema) {
		return eris.Errorf("sink: record has %d values, layer has %d fields", len(rec.Values), len(m.Layer.Schema))
	}
	m.Records = append(m.Records, rec)
	return nil
}

// Close implements Sink.
func (m *Memory) Close(_ context.Context) error {
	m.Closed = true
	return nil
}

// Abort implements Sink and drops the collected records.
func (m *Memory) Abort() error {
	m.Records = nil
	m.Aborted = true
	return nil
}
