package cache

import "testing"

func TestStatistics_HitRatio(t *testing.T) {
	tests := []struct {
		hits, misses int64
		want         float64
	}{
		{0, 0, 0},
		{3, 1, 0.75},
		{0, 5, 0},
		{4, 0, 1},
	}
	for _, tt := range tests {
		s := Statistics{Hits: tt.hits, Misses: tt.misses}
		if got := s.HitRatio(); got != tt.want {
			t.Errorf("HitRatio(%d, %d) = %v, want %v", tt.hits, tt.misses, got, tt.want)
		}
	}
}

func TestStatistics_AvgMemoryPerEntry(t *testing.T) {
	tests := []struct {
		entries int
		memory  int64
		want    int64
	}{
		{0, 0, 0},
		{0, 100, 0},
		{4, 100, 25},
		{3, 100, 33},
	}
	for _, tt := range tests {
		s := Statistics{TotalEntries: tt.entries, EstimatedMemory: tt.memory}
		if got := s.AvgMemoryPerEntry(); got != tt.want {
			t.Errorf("AvgMemoryPerEntry(%d, %d) = %d, want %d", tt.entries, tt.memory, got, tt.want)
		}
	}
}

func TestStatistics_Count(t *testing.T) {
	var s Statistics
	s.count(NewKey("p", 1, 0), 10)
	s.count(NewStageKey("p", 1, "load", 0), 20)
	s.count(NewStageKey("p", 1, "process", 0), 30)

	if s.TotalEntries != 3 || s.SingleStageEntries != 1 || s.MultiStageEntries != 2 {
		t.Errorf("entries = %d/%d/%d, want 3/1/2", s.TotalEntries, s.SingleStageEntries, s.MultiStageEntries)
	}
	if s.EstimatedMemory != 60 {
		t.Errorf("EstimatedMemory = %d, want 60", s.EstimatedMemory)
	}
}
