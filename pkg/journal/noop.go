package journal

import "github.com/chronodrachma/elastic/pkg/core/types"

// NoopRecorder discards all events. Used when no journal path is configured.
type NoopRecorder struct{}

func (NoopRecorder) Emit(types.Event) {}

func (NoopRecorder) Recent(int) ([]Entry, error) { return nil, nil }

func (NoopRecorder) Close() error { return nil }
