package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fall-detector-go/internal/model"
)

// ErrSessionNotFound сессия отсутствует в архиве
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository интерфейс для работы с архивом сессий
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, page, pageSize int) ([]*model.Session, int64, error)
	Delete(ctx context.Context, id string) error
}

// sessionRepository реализация SessionRepository
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository создает новый instance SessionRepository
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{
		db: db,
	}
}

// Create сохраняет завершенную сессию вместе с событиями
func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	if err := tx.Omit(clause.Associations).Create(session).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create session: %w", err)
	}

	if len(session.Events) > 0 {
		for i := range session.Events {
			session.Events[i].ID = 0 // Обнуляем ID для auto-increment
			session.Events[i].SessionID = session.ID
		}
		if err := tx.Create(&session.Events).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create fall events: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID получает сессию по ID
func (r *sessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("frame ASC") }).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// List получает список сессий с пагинацией, без событий
func (r *sessionRepository) List(ctx context.Context, page, pageSize int) ([]*model.Session, int64, error) {
	var sessions []*model.Session
	var total int64

	db := r.db.WithContext(ctx)

	// Подсчитываем общее количество
	if err := db.Model(&model.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	err := db.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, total, nil
}

// Delete удаляет события и помечает сессию удаленной
func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	if err := tx.Where("session_id = ?", id).Delete(&model.FallEventRecord{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete fall events: %w", err)
	}

	result := tx.Where("id = ?", id).Delete(&model.Session{})
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete session: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		tx.Rollback()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
