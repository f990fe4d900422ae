package crawlinfo

import (
	"sync"
	"time"
)

// Info là thống kê của một predicate sau khi được duyệt xong
type Info struct {
	Predicate       string        `json:"predicate"`
	RepositoryCount int           `json:"repository_count"`
	Records         int           `json:"records"`
	Pages           int           `json:"pages"`
	Requests        int           `json:"requests"`
	Retries         int           `json:"retries"`
	BudgetHit       bool          `json:"budget_hit"`
	Overflow        bool          `json:"overflow"`
	Duration        time.Duration `json:"duration"`
}

// Stats là thống kê của cả một lần sweep
type Stats struct {
	RunID      string    `json:"run_id"`
	Sink       string    `json:"sink"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Partitions []Info    `json:"partitions"`
	Records    int       `json:"records"`
	Requests   int       `json:"requests"`
	Retries    int       `json:"retries"`
	BudgetHit  bool      `json:"budget_hit"`
	LastError  string    `json:"last_error,omitempty"`
}

// Overflowing lists predicates whose reported total exceeded the search window.
func (s Stats) Overflowing() []string {
	var preds []string
	for _, info := range s.Partitions {
		if info.Overflow {
			preds = append(preds, info.Predicate)
		}
	}
	return preds
}

// Summary accumulates Stats while a sweep runs; it is safe to read concurrently.
type Summary struct {
	mu    sync.RWMutex
	stats Stats
}

func NewSummary(runID, sink string, startedAt time.Time) *Summary {
	return &Summary{stats: Stats{
		RunID:     runID,
		Sink:      sink,
		StartedAt: startedAt,
	}}
}

func (s *Summary) Add(info Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Partitions = append(s.stats.Partitions, info)
	s.stats.Records += info.Records
	s.stats.Requests += info.Requests
	s.stats.Retries += info.Retries
	if info.BudgetHit {
		s.stats.BudgetHit = true
	}
}

func (s *Summary) Finish(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.FinishedAt = at
	if err != nil {
		s.stats.LastError = err.Error()
	}
}

// Snapshot copies the current stats.
func (s *Summary) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.Partitions = append([]Info(nil), s.stats.Partitions...)
	return stats
}
