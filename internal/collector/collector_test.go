package collector

import (
	"context"
	"sync"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// recordingSink collects every Write call for assertions.
type recordingSink struct {
	mu      sync.Mutex
	streams []models.Stream
	records []interface{}
}

func (s *recordingSink) Write(ctx context.Context, stream models.Stream, record interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, stream)
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *recordingSink) snapshot() ([]models.Stream, []interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	streams := make([]models.Stream, len(s.streams))
	copy(streams, s.streams)
	records := make([]interface{}, len(s.records))
	copy(records, s.records)
	return streams, records
}
