package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSymbolRun(_ *SymbolRun) error  { return nil }
func (n *NoopRecorder) RecordBatch(_ *Batch) error          { return nil }
func (n *NoopRecorder) RecordBacktest(_ *BacktestRun) error { return nil }
func (n *NoopRecorder) Close() error                        { return nil }
