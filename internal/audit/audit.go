package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Sink receives emitted audit records.
type Sink[T any] interface {
	Emit(ctx context.Context, record T)
}

// NoOpSink drops audit records.
type NoOpSink[T any] struct{}

func (NoOpSink[T]) Emit(context.Context, T) {}

// ChannelSink writes audit records into a buffered channel.
type ChannelSink[T any] struct {
	records chan T
}

func NewChannelSink[T any](buffer int) *ChannelSink[T] {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink[T]{
		records: make(chan T, buffer),
	}
}

func (s *ChannelSink[T]) Emit(ctx context.Context, record T) {
	select {
	case s.records <- record:
	case <-ctx.Done():
	}
}

func (s *ChannelSink[T]) Records() <-chan T {
	return s.records
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink[T any] struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink[T any](w io.Writer) *JSONWriterSink[T] {
	return &JSONWriterSink[T]{
		writer: w,
	}
}

func (s *JSONWriterSink[T]) Emit(ctx context.Context, record T) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
}

// MultiSink fans each record out to every sink in order.
type MultiSink[T any] []Sink[T]

func (m MultiSink[T]) Emit(ctx context.Context, record T) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, record)
		}
	}
}
