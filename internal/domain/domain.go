package domain

type Goal struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ChangeKind names the mutation a Change describes.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeToggled ChangeKind = "toggled"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeAdded, ChangeRemoved, ChangeToggled:
		return true
	}
	return false
}

// Change is emitted by the goal store after every applied mutation.
// Goal is the goal after the change; for removals it is the goal as it was
// just before it left the store.
type Change struct {
	Seq    int64      `json:"seq"`
	Kind   ChangeKind `json:"kind" enum:"added,removed,toggled"`
	GoalID string     `json:"goal_id"`
	Goal   Goal       `json:"goal"`
	TS     string     `json:"ts" format:"date-time"`
}

// Partition splits goals by completion, each side in insertion order.
type Partition struct {
	Pending   []Goal `json:"pending"`
	Completed []Goal `json:"completed"`
}

// Total is the number of goals on both sides.
func (p Partition) Total() int {
	return len(p.Pending) + len(p.Completed)
}

// Event is a journaled change.
type Event struct {
	ID      int64  `json:"id"`
	Seq     int64  `json:"seq"`
	TS      string `json:"ts" format:"date-time"`
	Kind    string `json:"kind"`
	GoalID  string `json:"goal_id"`
	Payload string `json:"payload_json"`
}
