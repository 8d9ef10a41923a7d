package models

import "time"

// ChangeEvent announces a committed write so other instances can drop their cached snapshot
type ChangeEvent struct {
	EventID    string    `json:"event_id"`
	Origin     string    `json:"origin"`
	Operation  OpKind    `json:"operation"`
	RowID      int       `json:"row_id"`
	EntryID    string    `json:"entry_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RoutingKey is the topic the event is published under, e.g. abx.records.update
func (e ChangeEvent) RoutingKey() string {
	return "abx.records." + string(e.Operation)
}
