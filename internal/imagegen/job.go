package imagegen

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Job is one image generation request keyed by the caller's tool call id.
// ImageData is set iff completed; Error is set iff failed.
type Job struct {
	ID         string    `gorm:"primaryKey;size:26"` // ULID length
	SessionID  string    `gorm:"type:varchar(128);index;not null"`
	ToolCallID string    `gorm:"type:varchar(128);uniqueIndex;not null"`
	Prompt     string    `gorm:"type:text;not null"`
	Status     Status    `gorm:"type:varchar(16);index:idx_image_jobs_status_updated,priority:1;not null"`
	ImageData  *string   `gorm:"type:longtext"`
	Error      *string   `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index:idx_image_jobs_status_updated,priority:2"`
}

func (Job) TableName() string { return "image_generation_jobs" }

// StatusView is the polling response. Terminal views never change.
type StatusView struct {
	ToolCallID string    `json:"toolCallId"`
	Status     Status    `json:"status"`
	ImageData  *string   `json:"imageData,omitempty"`
	Error      *string   `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (j *Job) View() StatusView {
	return StatusView{
		ToolCallID: j.ToolCallID,
		Status:     j.Status,
		ImageData:  j.ImageData,
		Error:      j.Error,
		UpdatedAt:  j.UpdatedAt.UTC(),
	}
}

type Ticket struct {
	ToolCallID string `json:"toolCallId"`
	Status     Status `json:"status"`
}
