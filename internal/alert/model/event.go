package model

import (
	"time"

	"github.com/google/uuid"
)

// ModelEvent announces that a new surrogate model was installed.
type ModelEvent struct {
	ID         uuid.UUID `json:"id"`
	SnapshotID uuid.UUID `json:"snapshotId"`
	Schema     string    `json:"schema"`
	Members    int       `json:"members"`
	Attempts   int       `json:"attempts"`
	Rows       int       `json:"rows"`
	// output dimensions excluded from acceptance by calibration
	Inactive  []int     `json:"inactive"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewModelEvent(snapshotID uuid.UUID, schema string, members, attempts, rows int, inactive []int) ModelEvent {
	return ModelEvent{
		ID:         uuid.New(),
		SnapshotID: snapshotID,
		Schema:     schema,
		Members:    members,
		Attempts:   attempts,
		Rows:       rows,
		Inactive:   inactive,
		CreatedAt:  time.Now(),
	}
}
