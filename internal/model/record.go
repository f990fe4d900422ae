package model

import "time"

// RepositoryRecord là một repository quan sát được trong một lần sweep, khóa theo Name (owner/name).
type RepositoryRecord struct {
	Name     string    `json:"name"`
	Stars    int64     `json:"stars"`
	LastSeen time.Time `json:"last_seen"`
}

// Latest collapses records sharing a name into the most recent one, keeping first-seen order.
// Ties on LastSeen go to the record that appears later.
func Latest(records []RepositoryRecord) []RepositoryRecord {
	index := make(map[string]int, len(records))
	out := make([]RepositoryRecord, 0, len(records))
	for _, record := range records {
		if i, ok := index[record.Name]; ok {
			if !record.LastSeen.Before(out[i].LastSeen) {
				out[i] = record
			}
			continue
		}
		index[record.Name] = len(out)
		out = append(out, record)
	}
	return out
}
