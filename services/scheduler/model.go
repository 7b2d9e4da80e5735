package scheduler

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is an execution record for one run of a periodic task.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey"`
	Task        string         `gorm:"column:task;index;type:varchar(100);not null"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);not null"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   time.Time      `gorm:"column:started_at;index"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
}

// Payload is carried by every scan task. A zero Now means the time the
// worker picks the task up.
type Payload struct {
	Now time.Time `json:"now"`
}
