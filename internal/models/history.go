package models

import (
	"time"

	"gorm.io/datatypes"
)

// HistoryCapacity bounds the embedded audit trail per entity. Oldest entries
// are dropped first.
const HistoryCapacity = 20

// HistoryEntry is a single audit record embedded on an entity.
type HistoryEntry struct {
	Action  string    `json:"action"`
	ActorID uint      `json:"actor_id"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// History is a bounded append-only list persisted as a JSON column.
type History = datatypes.JSONSlice[HistoryEntry]

// AppendHistory appends entry and truncates the oldest records beyond
// HistoryCapacity.
func AppendHistory(history History, entry HistoryEntry) History {
	history = append(history, entry)
	if overflow := len(history) - HistoryCapacity; overflow > 0 {
		history = history[overflow:]
	}
	return history
}
