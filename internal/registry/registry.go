package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/peerloom/liveclass-service/internal/errs"
	"github.com/peerloom/liveclass-service/internal/model"
	"gorm.io/gorm"
)

// Store is the session registry: the host_active marker and admission
// requests for every group, keyed (group_id, user_id).
type Store interface {
	// StartSession installs a fresh host_active marker for the group.
	// A stale marker (older than the TTL) is treated as absent: all
	// rows for the group are wiped and the marker recreated. Returns
	// the marker and whether a previous session was cleaned up.
	StartSession(ctx context.Context, groupID, hostID, hostName string) (*model.SessionMarker, bool, error)
	// Marker returns the non-stale host_active marker, or nil.
	Marker(ctx context.Context, groupID string) (*model.SessionMarker, error)
	// HostActive reports whether a non-stale marker exists.
	HostActive(ctx context.Context, groupID string) (bool, error)
	// EndSession deletes every row for the group.
	EndSession(ctx context.Context, groupID string) error

	// GetRequest returns the (group,user) admission row, or nil.
	GetRequest(ctx context.Context, groupID, userID string) (*model.AdmissionRequest, error)
	// SubmitRequest creates a pending request, or flips an existing
	// rejected one back to pending with a fresh timestamp. A pending
	// or approved row is returned unchanged.
	SubmitRequest(ctx context.Context, groupID, userID, userName string) (*model.AdmissionRequest, error)
	// AutoApprove creates the (group,user) row directly in approved
	// state. Used on the auto-join path when the host is active.
	AutoApprove(ctx context.Context, groupID, userID, userName string) (*model.AdmissionRequest, error)

	Approve(ctx context.Context, id string) (*model.AdmissionRequest, error)
	Reject(ctx context.Context, id string) (*model.AdmissionRequest, error)
	// RejectUser rejects by (group,user); used to remove a participant.
	RejectUser(ctx context.Context, groupID, userID string) error
	// ApproveAll approves every pending request and returns them.
	ApproveAll(ctx context.Context, groupID string) ([]model.AdmissionRequest, error)
	// ResetAll flips every non-marker, non-host row back to pending.
	ResetAll(ctx context.Context, groupID, hostID string) error
	// Pending lists pending requests ordered by creation, host excluded.
	Pending(ctx context.Context, groupID, hostID string) ([]model.AdmissionRequest, error)
}

// GormStore implements Store on PostgreSQL and publishes row changes
// on the feed after each successful write.
type GormStore struct {
	db   *gorm.DB
	feed *Feed
	ttl  time.Duration
}

// NewGormStore creates a registry store. ttl is the marker staleness
// threshold.
func NewGormStore(db *gorm.DB, feed *Feed, ttl time.Duration) *GormStore {
	return &GormStore{db: db, feed: feed, ttl: ttl}
}

func (s *GormStore) StartSession(ctx context.Context, groupID, hostID, hostName string) (*model.SessionMarker, bool, error) {
	var ent model.MeetingRequest
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, hostID, model.StatusHostActive).
		First(&ent).Error
	stale := false
	switch {
	case err == nil:
		if time.Since(ent.CreatedAt) <= s.ttl {
			return markerView(&ent), false, nil
		}
		stale = true
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, false, err
	}

	// Previous session absent or stale: wipe the group and start over.
	if err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&model.MeetingRequest{}).Error; err != nil {
		return nil, false, err
	}

	marker := model.MeetingRequest{
		ID:       uuid.New().String(),
		GroupID:  groupID,
		UserID:   hostID,
		UserName: hostName,
		Status:   string(model.StatusHostActive),
	}
	if err := s.db.WithContext(ctx).Create(&marker).Error; err != nil {
		return nil, false, err
	}
	s.publish(OpInsert, &marker)
	return markerView(&marker), stale, nil
}

func (s *GormStore) Marker(ctx context.Context, groupID string) (*model.SessionMarker, error) {
	var ent model.MeetingRequest
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, model.StatusHostActive).
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Since(ent.CreatedAt) > s.ttl {
		return nil, nil
	}
	return markerView(&ent), nil
}

func (s *GormStore) HostActive(ctx context.Context, groupID string) (bool, error) {
	m, err := s.Marker(ctx, groupID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (s *GormStore) EndSession(ctx context.Context, groupID string) error {
	return s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&model.MeetingRequest{}).Error
}

func (s *GormStore) GetRequest(ctx context.Context, groupID, userID string) (*model.AdmissionRequest, error) {
	var ent model.MeetingRequest
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND status <> ?", groupID, userID, model.StatusHostActive).
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return requestView(&ent), nil
}

func (s *GormStore) SubmitRequest(ctx context.Context, groupID, userID, userName string) (*model.AdmissionRequest, error) {
	existing, err := s.GetRequest(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != model.StatusRejected {
			return existing, nil
		}
		// Re-request: one logical row per (group,user), refreshed.
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&model.MeetingRequest{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": string(model.StatusPending), "created_at": now}).Error; err != nil {
			return nil, err
		}
		existing.Status = model.StatusPending
		existing.CreatedAt = now
		s.publishView(OpUpdate, existing)
		return existing, nil
	}

	ent := model.MeetingRequest{
		ID:       uuid.New().String(),
		GroupID:  groupID,
		UserID:   userID,
		UserName: userName,
		Status:   string(model.StatusPending),
	}
	if err := s.db.WithContext(ctx).Create(&ent).Error; err != nil {
		return nil, err
	}
	s.publish(OpInsert, &ent)
	return requestView(&ent), nil
}

func (s *GormStore) AutoApprove(ctx context.Context, groupID, userID, userName string) (*model.AdmissionRequest, error) {
	ent := model.MeetingRequest{
		ID:       uuid.New().String(),
		GroupID:  groupID,
		UserID:   userID,
		UserName: userName,
		Status:   string(model.StatusApproved),
	}
	if err := s.db.WithContext(ctx).Create(&ent).Error; err != nil {
		return nil, err
	}
	s.publish(OpInsert, &ent)
	return requestView(&ent), nil
}

func (s *GormStore) setStatus(ctx context.Context, id string, status model.RequestStatus) (*model.AdmissionRequest, error) {
	var ent model.MeetingRequest
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&ent).Update("status", string(status)).Error; err != nil {
		return nil, err
	}
	ent.Status = string(status)
	s.publish(OpUpdate, &ent)
	return requestView(&ent), nil
}

func (s *GormStore) Approve(ctx context.Context, id string) (*model.AdmissionRequest, error) {
	return s.setStatus(ctx, id, model.StatusApproved)
}

func (s *GormStore) Reject(ctx context.Context, id string) (*model.AdmissionRequest, error) {
	return s.setStatus(ctx, id, model.StatusRejected)
}

func (s *GormStore) RejectUser(ctx context.Context, groupID, userID string) error {
	var ent model.MeetingRequest
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND status <> ?", groupID, userID, model.StatusHostActive).
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&ent).Update("status", string(model.StatusRejected)).Error; err != nil {
		return err
	}
	ent.Status = string(model.StatusRejected)
	s.publish(OpUpdate, &ent)
	return nil
}

func (s *GormStore) ApproveAll(ctx context.Context, groupID string) ([]model.AdmissionRequest, error) {
	var ents []model.MeetingRequest
	if err := s.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, model.StatusPending).
		Find(&ents).Error; err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(ents))
	for _, e := range ents {
		ids = append(ids, e.ID)
	}
	if err := s.db.WithContext(ctx).Model(&model.MeetingRequest{}).
		Where("id IN ?", ids).
		Update("status", string(model.StatusApproved)).Error; err != nil {
		return nil, err
	}
	out := make([]model.AdmissionRequest, 0, len(ents))
	for i := range ents {
		ents[i].Status = string(model.StatusApproved)
		s.publish(OpUpdate, &ents[i])
		out = append(out, *requestView(&ents[i]))
	}
	return out, nil
}

func (s *GormStore) ResetAll(ctx context.Context, groupID, hostID string) error {
	var ents []model.MeetingRequest
	if err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id <> ? AND status <> ?", groupID, hostID, model.StatusHostActive).
		Find(&ents).Error; err != nil {
		return err
	}
	if len(ents) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&model.MeetingRequest{}).
		Where("group_id = ? AND user_id <> ? AND status <> ?", groupID, hostID, model.StatusHostActive).
		Update("status", string(model.StatusPending)).Error; err != nil {
		return err
	}
	for i := range ents {
		ents[i].Status = string(model.StatusPending)
		s.publish(OpUpdate, &ents[i])
	}
	return nil
}

func (s *GormStore) Pending(ctx context.Context, groupID, hostID string) ([]model.AdmissionRequest, error) {
	var ents []model.MeetingRequest
	if err := s.db.WithContext(ctx).
		Where("group_id = ? AND status = ? AND user_id <> ?", groupID, model.StatusPending, hostID).
		Order("created_at ASC").
		Find(&ents).Error; err != nil {
		return nil, err
	}
	out := make([]model.AdmissionRequest, 0, len(ents))
	for i := range ents {
		out = append(out, *requestView(&ents[i]))
	}
	return out, nil
}

func (s *GormStore) publish(op Op, ent *model.MeetingRequest) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(Change{Op: op, Row: *requestView(ent)})
}

func (s *GormStore) publishView(op Op, req *model.AdmissionRequest) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(Change{Op: op, Row: *req})
}

func markerView(ent *model.MeetingRequest) *model.SessionMarker {
	return &model.SessionMarker{
		GroupID:   ent.GroupID,
		HostID:    ent.UserID,
		HostName:  ent.UserName,
		CreatedAt: ent.CreatedAt,
	}
}

func requestView(ent *model.MeetingRequest) *model.AdmissionRequest {
	return &model.AdmissionRequest{
		ID:        ent.ID,
		GroupID:   ent.GroupID,
		UserID:    ent.UserID,
		UserName:  ent.UserName,
		Status:    model.RequestStatus(ent.Status),
		CreatedAt: ent.CreatedAt,
	}
}
