package changefeed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// errors returns the ERROR entries written so far.
func (s *logSink) errors() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(s.buf.Bytes()))
	for sc.Scan() {
		var entry map[string]any
		if json.Unmarshal(sc.Bytes(), &entry) != nil {
			continue
		}
		if entry["level"] == "ERROR" {
			out = append(out, entry)
		}
	}
	return out
}

func newTestLogger() (*slog.Logger, *logSink) {
	sink := &logSink{}
	return slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelDebug})), sink
}

type countingReader struct {
	store.Reader
	mu    sync.Mutex
	finds int
	gets  int
}

func (c *countingReader) GetByID(ctx context.Context, entity, id string) (store.Record, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Reader.GetByID(ctx, entity, id)
}

func (c *countingReader) Find(ctx context.Context, entity string, where store.Where) ([]store.Record, error) {
	c.mu.Lock()
	c.finds++
	c.mu.Unlock()
	return c.Reader.Find(ctx, entity, where)
}

type countingObserver struct {
	mu            sync.Mutex
	published     int
	publishFailed int
	resolveFailed int
}

func (o *countingObserver) Published(string, string) {
	o.mu.Lock()
	o.published++
	o.mu.Unlock()
}

func (o *countingObserver) PublishFailed(string, string) {
	o.mu.Lock()
	o.publishFailed++
	o.mu.Unlock()
}

func (o *countingObserver) ResolveFailed(string, string) {
	o.mu.Lock()
	o.resolveFailed++
	o.mu.Unlock()
}
