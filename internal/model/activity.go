package model

import "time"

const (
	ActionUploaded = "uploaded"
	ActionDeleted  = "deleted"
)

// Activity is one entry of the upload/delete audit trail.
type Activity struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
