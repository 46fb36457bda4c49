package model

import "time"

// RequestStatus represents admission request / session marker state.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusApproved   RequestStatus = "approved"
	StatusRejected   RequestStatus = "rejected"
	StatusHostActive RequestStatus = "host_active"
)

// AdmissionRequest is the API view of a registry row (not GORM entity).
type AdmissionRequest struct {
	ID        string        `json:"id"`
	GroupID   string        `json:"group_id"`
	UserID    string        `json:"user_id"`
	UserName  string        `json:"user_name"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// SessionMarker is the host-active marker for a group.
type SessionMarker struct {
	GroupID   string    `json:"group_id"`
	HostID    string    `json:"host_id"`
	HostName  string    `json:"host_name"`
	CreatedAt time.Time `json:"created_at"`
}

// StartSessionRequest is the request body for POST /sessions.
type StartSessionRequest struct {
	GroupID  string `json:"group_id" binding:"required"`
	HostID   string `json:"host_id" binding:"required"`
	HostName string `json:"host_name"`
}

// StartSessionResponse is the response for POST /sessions. RoomPollMS
// is the interval the host client should poll the waiting room at.
type StartSessionResponse struct {
	GroupID    string `json:"group_id"`
	HostID     string `json:"host_id"`
	Status     string `json:"status"`
	WSURL      string `json:"ws_url"`
	Restarted  bool   `json:"restarted"`
	RoomPollMS int64  `json:"room_poll_ms"`
}

// SessionStatusResponse is the response for GET /sessions/:group_id.
type SessionStatusResponse struct {
	GroupID    string         `json:"group_id"`
	HostActive bool           `json:"host_active"`
	Marker     *SessionMarker `json:"marker,omitempty"`
}

// SubmitRequestRequest is the body for POST /sessions/:group_id/requests.
type SubmitRequestRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name"`
}

// PendingRequestsResponse lists requests awaiting host review.
type PendingRequestsResponse struct {
	GroupID  string             `json:"group_id"`
	Requests []AdmissionRequest `json:"requests"`
}
