package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/agent101/embedding"
)

// SQLiteVector persists records and embeddings in a SQLite file and ranks
// them in process by cosine similarity.
type SQLiteVector struct {
	db       *sql.DB
	table    string
	embedder embedding.Embedder
}

// SQLiteVectorOptions configures SQLiteVector.
type SQLiteVectorOptions struct {
	Path      string // database file
	TableName string // default "agent101_memory"
}

// NewSQLiteVector opens (or creates) the database at opts.Path.
func NewSQLiteVector(opts SQLiteVectorOptions, embedder embedding.Embedder) (*SQLiteVector, error) {
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vector dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	table := opts.TableName
	if table == "" {
		table = "agent101_memory"
	}

	s := &SQLiteVector{db: db, table: table, embedder: embedder}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// OpenPersistent opens the vector memory file inside dir.
func OpenPersistent(dir string, embedder embedding.Embedder) (*SQLiteVector, error) {
	return NewSQLiteVector(SQLiteVectorOptions{Path: filepath.Join(dir, "memory.db")}, embedder)
}

func (s *SQLiteVector) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata TEXT,
			embedding TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Close closes the database.
func (s *SQLiteVector) Close() error {
	return s.db.Close()
}

func (s *SQLiteVector) Add(ctx context.Context, texts []string, metadatas []map[string]any) error {
	if err := checkMetadatas(texts, metadatas); err != nil {
		return err
	}
	if len(texts) == 0 {
		return nil
	}
	vecs, err := embedDocuments(ctx, s.embedder, texts)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO %s (id, text, metadata, embedding, created_at) VALUES (?, ?, ?, ?, ?)`, s.table)
	for i, text := range texts {
		meta, err := json.Marshal(metadataAt(metadatas, i))
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		emb, err := json.Marshal(vecs[i])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), text, string(meta), string(emb), time.Now()); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteVector) Search(ctx context.Context, query string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	q, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, text, metadata, embedding FROM %s ORDER BY created_at`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var (
		records []Record
		vecs    [][]float32
	)
	for rows.Next() {
		var (
			r         Record
			meta, emb string
		)
		if err := rows.Scan(&r.ID, &r.Text, &meta, &emb); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		var v []float32
		if err := json.Unmarshal([]byte(emb), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
		records = append(records, r)
		vecs = append(vecs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(q, records, vecs, k), nil
}
