package model

import "time"

// RepositoryBatchKey là key của message batch repositories trên Kafka
const RepositoryBatchKey = "repositories"

// RepositoryBatchMessage là batch của một predicate gửi tới Kafka
type RepositoryBatchMessage struct {
	RunID      string             `json:"run_id"`
	Predicate  string             `json:"predicate"`
	ProducedAt time.Time          `json:"produced_at"`
	Records    []RepositoryRecord `json:"records"`
}
