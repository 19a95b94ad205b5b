package server

import (
	"encoding/json"

	"goalkeeper/internal/domain"
)

// Request payloads

type AddGoalRequest struct {
	Text string `json:"text" example:"Buy milk"`
}

// Responses

type GoalResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// BoardResponse is the partition as of change Seq.
type BoardResponse struct {
	Pending   []GoalResponse `json:"pending"`
	Completed []GoalResponse `json:"completed"`
	Total     int            `json:"total"`
	Seq       int64          `json:"seq"`
}

type AddGoalResponse struct {
	Added bool          `json:"added"`
	Goal  *GoalResponse `json:"goal,omitempty"`
}

type ToggleGoalResponse struct {
	Changed bool          `json:"changed"`
	Goal    *GoalResponse `json:"goal,omitempty"`
}

type StatsResponse struct {
	Pending   int            `json:"pending"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Changes   map[string]int `json:"changes"`
}

type MeResponse struct {
	Subject       string `json:"subject,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

type EventResponse struct {
	ID     int64          `json:"id"`
	Seq    int64          `json:"seq"`
	TS     string         `json:"ts" format:"date-time"`
	Kind   string         `json:"kind" enum:"added,removed,toggled"`
	GoalID string         `json:"goal_id"`
	Goal   map[string]any `json:"goal"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ChangeMessage is the payload of a streamed "change" event.
type ChangeMessage struct {
	Seq    int64        `json:"seq"`
	Kind   string       `json:"kind" enum:"added,removed,toggled"`
	GoalID string       `json:"goal_id"`
	Goal   GoalResponse `json:"goal"`
	TS     string       `json:"ts" format:"date-time"`
}

func goalResponse(g domain.Goal) GoalResponse {
	return GoalResponse{
		ID:        g.ID,
		Text:      g.Text,
		Completed: g.Completed,
		CreatedAt: g.CreatedAt,
	}
}

func mapGoals(items []domain.Goal) []GoalResponse {
	out := make([]GoalResponse, 0, len(items))
	for _, g := range items {
		out = append(out, goalResponse(g))
	}
	return out
}

func boardResponse(p domain.Partition, seq int64) BoardResponse {
	return BoardResponse{
		Pending:   mapGoals(p.Pending),
		Completed: mapGoals(p.Completed),
		Total:     p.Total(),
		Seq:       seq,
	}
}

func eventResponse(e domain.Event) EventResponse {
	var goal map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &goal); err != nil || goal == nil {
		goal = map[string]any{}
	}
	return EventResponse{
		ID:     e.ID,
		Seq:    e.Seq,
		TS:     e.TS,
		Kind:   e.Kind,
		GoalID: e.GoalID,
		Goal:   goal,
	}
}

func changeMessage(c domain.Change) ChangeMessage {
	return ChangeMessage{
		Seq:    c.Seq,
		Kind:   string(c.Kind),
		GoalID: c.GoalID,
		Goal:   goalResponse(c.Goal),
		TS:     c.TS,
	}
}
