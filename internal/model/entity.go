package model

import "time"

// MeetingRequest is one row of the session registry (GORM).
//
// The same table carries two kinds of rows, distinguished by status:
// the per-group "host_active" session marker (one non-stale row per
// group) and per-(group,user) admission requests.
type MeetingRequest struct {
	ID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	GroupID   string    `gorm:"type:text;not null;index:idx_meeting_requests_group_status"`
	UserID    string    `gorm:"type:text;not null;index"`
	UserName  string    `gorm:"size:120;not null;default:''"`
	Status    string    `gorm:"size:20;not null;default:pending;index:idx_meeting_requests_group_status"` // pending, approved, rejected, host_active
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (MeetingRequest) TableName() string { return "meeting_requests" }
