package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// FileSink appends leak warnings as newline-delimited JSON to a
// rotated writer. Pair it with logger.RotatingWriter so the leak log
// shares the same lumberjack rotation policy as application logs
// without sharing the same file.
type FileSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileSink wraps an io.Writer (typically logger.RotatingWriter's
// result) as a leak-warning sink.
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

type fileSinkRecord struct {
	Time          time.Time `json:"time"`
	Tier          string    `json:"tier"`
	PatternText   string    `json:"pattern_text"`
	RefCount      int32     `json:"ref_count"`
	AgeSeconds    float64   `json:"age_seconds"`
	DeferredSince time.Time `json:"deferred_since"`
}

func (f *FileSink) Leak(_ context.Context, w LeakWarning) error {
	rec := fileSinkRecord{
		Time:          time.Now().UTC(),
		Tier:          w.Tier,
		PatternText:   w.PatternText,
		RefCount:      w.RefCount,
		AgeSeconds:    w.Age.Seconds(),
		DeferredSince: w.DeferredSince,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal leak warning: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	_, err = f.w.Write(line)
	return err
}
