package cache

// Statistics aggregates cache activity for one plugin.
type Statistics struct {
	PluginID           string `json:"plugin_id"`
	TotalEntries       int    `json:"total_entries"`
	SingleStageEntries int    `json:"single_stage_entries"`
	MultiStageEntries  int    `json:"multi_stage_entries"`
	Hits               int64  `json:"cache_hits"`
	Misses             int64  `json:"cache_misses"`
	Invalidations      int64  `json:"cache_invalidations"`
	EstimatedMemory    int64  `json:"estimated_memory_usage"`
}

// HitRatio returns hits/(hits+misses), or 0 when nothing was looked up.
func (s Statistics) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// AvgMemoryPerEntry returns EstimatedMemory/TotalEntries using integer
// division, or 0 when there are no entries.
func (s Statistics) AvgMemoryPerEntry() int64 {
	if s.TotalEntries == 0 {
		return 0
	}
	return s.EstimatedMemory / int64(s.TotalEntries)
}

// count tallies one live entry into the entry and memory fields.
func (s *Statistics) count(key Key, size int) {
	s.TotalEntries++
	if key.HasStage() {
		s.MultiStageEntries++
	} else {
		s.SingleStageEntries++
	}
	s.EstimatedMemory += int64(size)
}
