package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/voxbridge/voxbridge/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.Session) error {
	return r.db.Create(session).Error
}

func (r *SessionRepository) Find(id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) List() ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.Order("started_at desc").Find(&sessions).Error
	return sessions, err
}

// MarkEnded closes a session with the given terminal status.
func (r *SessionRepository) MarkEnded(id, status, errMsg string) error {
	now := time.Now()
	return r.db.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"ended_at": &now,
		"status":   status,
		"error":    errMsg,
	}).Error
}
