package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"edith/models"

	_ "github.com/lib/pq"
)

// PostgresKnowledgeStore keeps the document in a single jsonb row.
type PostgresKnowledgeStore struct {
	db *sql.DB
}

func NewPostgresKnowledgeStore(ctx context.Context, postgresURI string) (*PostgresKnowledgeStore, error) {
	connStr := postgresURI
	if !strings.Contains(postgresURI, "sslmode=") {
		if strings.Contains(postgresURI, "?") {
			connStr += "&sslmode=disable"
		} else if strings.Contains(postgresURI, "://") {
			connStr += "?sslmode=disable"
		} else {
			connStr += " sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s, err := NewPostgresKnowledgeStoreWithDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresKnowledgeStoreWithDB uses an already opened database and makes
// sure the knowledge table exists.
func NewPostgresKnowledgeStoreWithDB(ctx context.Context, db *sql.DB) (*PostgresKnowledgeStore, error) {
	s := &PostgresKnowledgeStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresKnowledgeStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS knowledge_documents (
            id         TEXT PRIMARY KEY,
            document   JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create knowledge table: %w", err)
	}
	return nil
}

func (s *PostgresKnowledgeStore) Load(ctx context.Context) (models.KnowledgeDocument, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM knowledge_documents WHERE id = $1`, knowledgeItemID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.KnowledgeDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}

	doc := models.KnowledgeDocument{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge: %w", err)
	}
	return doc, nil
}

func (s *PostgresKnowledgeStore) Replace(ctx context.Context, doc models.KnowledgeDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode knowledge: %w", err)
	}

	query := `
        INSERT INTO knowledge_documents (id, document, updated_at)
        VALUES ($1, $2::jsonb, NOW())
        ON CONFLICT (id)
        DO UPDATE SET
            document = EXCLUDED.document,
            updated_at = EXCLUDED.updated_at
    `
	if _, err := s.db.ExecContext(ctx, query, knowledgeItemID, string(data)); err != nil {
		return fmt.Errorf("failed to save knowledge: %w", err)
	}
	return nil
}

func (s *PostgresKnowledgeStore) Close() error {
	return s.db.Close()
}
