package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/voxbridge/voxbridge/internal/model"
)

type TranscriptRepository struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) Create(t *model.Transcript) error {
	return r.db.Create(t).Error
}

func (r *TranscriptRepository) FindBySession(sessionID string) ([]model.Transcript, error) {
	var transcripts []model.Transcript
	err := r.db.Where("session_id = ?", sessionID).Order("timestamp asc").Find(&transcripts).Error
	return transcripts, err
}

type SentimentRepository struct {
	db *gorm.DB
}

func NewSentimentRepository(db *gorm.DB) *SentimentRepository {
	return &SentimentRepository{db: db}
}

func (r *SentimentRepository) Create(s *model.SentimentRecord) error {
	return r.db.Create(s).Error
}

func (r *SentimentRepository) FindBySession(sessionID string) ([]model.SentimentRecord, error) {
	var records []model.SentimentRecord
	err := r.db.Where("session_id = ?", sessionID).Order("timestamp asc").Find(&records).Error
	return records, err
}

// LatestBySession returns the most recent sentiment for a session, or
// nil when none has arrived yet.
func (r *SentimentRepository) LatestBySession(sessionID string) (*model.SentimentRecord, error) {
	var record model.SentimentRecord
	err := r.db.Where("session_id = ?", sessionID).Order("timestamp desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
