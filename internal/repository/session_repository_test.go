package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fall-detector-go/internal/model"
)

func setupMockSessionDB(t *testing.T) (sqlmock.Sqlmock, SessionRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return mock, NewSessionRepository(gdb)
}

var sessionColumns = []string{
	"id", "status", "video_filename", "video_path", "output_path",
	"width", "height", "fps", "total_frames", "duration",
	"total_falls", "alerts_triggered", "error_count", "risk_level", "processing_time",
	"terminated", "care_analysis", "error_message",
	"frames_processed", "frames_skipped", "detection_time", "write_errors",
	"created_at", "updated_at", "deleted_at",
}

func sessionRow(rows *sqlmock.Rows, id string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, "completed", "ward.mp4", "/static/videos/"+id+"/ward.mp4", "",
		640, 480, 30.0, 300, 10.0,
		2, 1, 0, "medium", 4.2,
		false, "Patient should be monitored.", "",
		100, 200, 5.0, 0,
		now, now, nil,
	)
}

func TestCreateSession_WithEvents(t *testing.T) {
	mock, repo := setupMockSessionDB(t)
	id := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "sessions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "fall_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	session := &model.Session{
		ID:     id,
		Status: "completed",
		Events: []model.FallEventRecord{
			{ID: 99, Frame: 109, Timestamp: 3.63, Type: "sustained", Confidence: 0.75},
			{Frame: 200, Timestamp: 6.67, Type: "sudden", Confidence: 0.8},
		},
	}
	require.NoError(t, repo.Create(context.Background(), session))

	assert.Equal(t, id, session.Events[0].SessionID)
	assert.Equal(t, id, session.Events[1].SessionID)
	assert.Equal(t, uint(1), session.Events[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_RollbackOnError(t *testing.T) {
	mock, repo := setupMockSessionDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "sessions"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Session{ID: uuid.New().String(), Status: "failed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionByID_Success(t *testing.T) {
	mock, repo := setupMockSessionDB(t)
	id := uuid.New().String()

	mock.ExpectQuery(`SELECT \* FROM "sessions"`).
		WillReturnRows(sessionRow(sqlmock.NewRows(sessionColumns), id))
	mock.ExpectQuery(`SELECT \* FROM "fall_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "frame", "timestamp", "type", "confidence", "x1", "y1", "x2", "y2", "created_at"}).
			AddRow(1, id, 109, 3.63, "sustained", 0.75, 60, 320, 140, 480, time.Now()))

	session, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, "medium", session.RiskLevel)
	assert.Equal(t, 100, session.FramesProcessed)
	assert.Equal(t, 200, session.FramesSkipped)
	assert.Equal(t, 5.0, session.DetectionTime)
	require.Len(t, session.Events, 1)
	assert.Equal(t, 109, session.Events[0].Frame)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionByID_NotFound(t *testing.T) {
	mock, repo := setupMockSessionDB(t)

	mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions(t *testing.T) {
	mock, repo := setupMockSessionDB(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	rows := sqlmock.NewRows(sessionColumns)
	sessionRow(rows, uuid.New().String())
	sessionRow(rows, uuid.New().String())
	mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnRows(rows)

	sessions, total, err := repo.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSession_SoftDelete(t *testing.T) {
	mock, repo := setupMockSessionDB(t)
	id := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "fall_events"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE "sessions" SET "deleted_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSession_NotFound(t *testing.T) {
	mock, repo := setupMockSessionDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "fall_events"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "sessions" SET "deleted_at"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
