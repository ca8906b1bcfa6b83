package storage

// Sink appends records to an append-only history.
type Sink interface {
	Append(records ...any) error
}
