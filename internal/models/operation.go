package models

// OpKind identifies the mutation carried by a pending operation
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// OpStatus is the lifecycle state of a pending operation
type OpStatus string

const (
	StatusQueued     OpStatus = "queued"
	StatusInFlight   OpStatus = "in_flight"
	StatusCommitted  OpStatus = "committed"
	StatusConflicted OpStatus = "conflicted"
	StatusFailed     OpStatus = "failed"
	StatusCancelled  OpStatus = "cancelled"
)

// Terminal reports whether no further transition can happen
func (s OpStatus) Terminal() bool {
	switch s {
	case StatusCommitted, StatusConflicted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Operation is a create/update/delete request owned by the write coordinator until it resolves
type Operation struct {
	Kind   OpKind
	RowID  int
	Fields Fields
	// Baseline is the row content the caller last saw. Nil disables the compare-and-swap check
	Baseline *Record
	// Marker is the entry_id written with an insert, used to detect partial success on retry
	Marker   string
	Seq      uint64
	Attempts int
}

// Result is the resolution of one operation
type Result struct {
	Seq      uint64
	Kind     OpKind
	Status   OpStatus
	RowID    int
	Record   *Record
	Remote   *Record
	Attempts int
	Err      error
}
