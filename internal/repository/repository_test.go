package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestDocumentRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "documents"`)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow(42))
	mock.ExpectCommit()

	doc := &models.Document{ClassroomID: 7, UploadedBy: 1, Filename: "physics.pdf"}
	require.NoError(t, repo.Create(context.Background(), doc))
	assert.Equal(t, uint(42), doc.DocumentID)
	assert.Equal(t, models.DocumentStatusCreated, doc.Status)
	assert.False(t, doc.IsProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE document_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}))

	_, err := repo.GetByID(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	rows := sqlmock.NewRows([]string{"document_id", "classroom_id", "filename", "is_processed", "status", "chunk_count"}).
		AddRow(3, 7, "cells.txt", true, models.DocumentStatusProcessed, 5)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE document_id = $1`)).WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(7), doc.ClassroomID)
	assert.True(t, doc.IsProcessed)
	assert.Equal(t, 5, doc.ChunkCount)
}

func TestDocumentRepository_MarkProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "documents" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkProcessed(context.Background(), 3, 12))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_MarkFailedMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "documents" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkFailed(context.Background(), 404, "boom")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestDocumentRepository_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE classroom_id = $1`)).
		WillReturnError(assert.AnError)

	_, err := repo.ListByClassroom(context.Background(), 7)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
}

func TestClassroomRepository_IsMember(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassroomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "classrooms" WHERE classroom_id = $1 AND teacher_id = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "classroom_students" WHERE classroom_id = $1 AND user_id = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.IsMember(context.Background(), 7, 21)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepository_TeacherIsMember(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassroomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "classrooms"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.IsMember(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lessons" WHERE lesson_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"lesson_id", "document_id", "topic", "content"}).
			AddRow(5, 3, "Newton's laws", "Imagine a football..."))

	lesson, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Newton's laws", lesson.Topic)
}

func TestQuestionRepository_ReplaceForDocument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuestionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "questions" WHERE document_id = $1`)).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "questions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"question_id"}).AddRow(11).AddRow(12))
	mock.ExpectCommit()

	questions := []models.Question{
		{DocumentID: 3, ClassroomID: 7, Segment: 1, Difficulty: "Easy", Question: "q1", OptA: "a", OptB: "b", OptC: "c", OptD: "d", Answer: "A"},
		{DocumentID: 3, ClassroomID: 7, Segment: 2, Difficulty: "Hard", Question: "q2", OptA: "a", OptB: "b", OptC: "c", OptD: "d", Answer: "C"},
	}
	require.NoError(t, repo.ReplaceForDocument(context.Background(), 3, questions))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepository_ReplaceRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuestionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "questions"`)).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ReplaceForDocument(context.Background(), 3, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepository_ListByDocument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuestionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "questions" WHERE document_id = $1 ORDER BY segment ASC, question_id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"question_id", "document_id", "question", "answer"}).
			AddRow(11, 3, "What is inertia?", "B"))

	questions, err := repo.ListByDocument(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "B", questions[0].Answer)
}
