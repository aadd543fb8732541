package schema

// Status is the synchronization state of a record.
type Status string

const (
	// StatusPending means saved locally and not yet confirmed by the remote.
	StatusPending Status = "pending"
	// StatusSynced means the remote confirmed the record.
	StatusSynced Status = "synced"
	// StatusError means the last sync attempt failed.
	StatusError Status = "error"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusPending, StatusSynced, StatusError}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether the engine may move a record from s to next.
//
// synced -> pending is deliberately absent: leaving synced requires an
// explicit Save, which bypasses this check.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusPending || next == StatusSynced || next == StatusError
	case StatusError:
		return next == StatusPending || next == StatusSynced
	}
	return false
}

// TransitionSources returns the statuses that may move to next.
func TransitionSources(next Status) []Status {
	var from []Status
	for _, s := range AllStatuses {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}

// String returns the status value.
func (s Status) String() string {
	return string(s)
}
