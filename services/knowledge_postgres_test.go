package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"edith/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresKnowledgeStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS knowledge_documents")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgresKnowledgeStoreWithDB(context.Background(), db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresKnowledgeStore_Load(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	query := regexp.QuoteMeta("SELECT document FROM knowledge_documents WHERE id = $1")

	mock.ExpectQuery(query).WithArgs(knowledgeItemID).
		WillReturnRows(sqlmock.NewRows([]string{"document"}))
	mock.ExpectQuery(query).WithArgs(knowledgeItemID).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(`{"name":"Vishal"}`)))

	empty, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.KnowledgeDocument{"name": "Vishal"}, doc)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKnowledgeStore_Replace(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO knowledge_documents (id, document, updated_at)")).
		WithArgs(knowledgeItemID, `{"name":"Vishal","skills":["Go"]}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Replace(context.Background(), models.KnowledgeDocument{"skills": []any{"Go"}, "name": "Vishal"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKnowledgeStore_Errors(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document")).
		WillReturnError(errors.New("connection refused"))
	_, err := store.Load(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document")).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte("not json")))
	_, err = store.Load(context.Background())
	assert.Error(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO knowledge_documents")).
		WillReturnError(errors.New("disk full"))
	assert.ErrorContains(t, store.Replace(context.Background(), models.KnowledgeDocument{}), "disk full")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKnowledgeStore_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = NewPostgresKnowledgeStoreWithDB(context.Background(), db)
	assert.ErrorContains(t, err, "permission denied")
}
