package model

import "time"

// HandoffRecord is one committed transition of the stage state machine.
// Append-only; the router's transition log and the sole source of truth for
// resumption. PayloadRef is the opaque reference id carried into the next
// stage (plan, research session or module content id), never the payload.
type HandoffRecord struct {
	ID         string
	JobID      string
	FromStage  Stage
	ToStage    Stage
	PayloadRef string
	CreatedAt  time.Time
}
