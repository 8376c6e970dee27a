package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"mdcollab/core"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	usersTableStmt := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(usersTableStmt); err != nil {
		log.Fatalf("failed to create users table: %v", err)
	}

	documentsTableStmt := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		user_id TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		last_synced_at DATETIME
	);`
	if _, err = db.Exec(documentsTableStmt); err != nil {
		log.Fatalf("failed to create documents table: %v", err)
	}

	versionsTableStmt := `
	CREATE TABLE IF NOT EXISTS document_versions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME,
		UNIQUE (document_id, version)
	);`
	if _, err = db.Exec(versionsTableStmt); err != nil {
		log.Fatalf("failed to create document_versions table: %v", err)
	}

	return &sqliteStore{db}
}

// UserStore implementation

func (s *sqliteStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	var user core.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at, updated_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user with id %s: %w", id, core.ErrNotFound)
		}
		logrus.WithField("user_id", id).WithError(err).Error("Failed to retrieve user")
		return nil, err
	}
	return &user, nil
}

func (s *sqliteStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var user core.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at, updated_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *sqliteStore) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	now := time.Now()
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		created.ID, created.Email, created.Username, created.PasswordHash, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		logrus.WithField("email", created.Email).WithError(err).Error("Failed to create user")
		return nil, err
	}
	return &created, nil
}

// DocumentStore implementation

func (s *sqliteStore) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var document core.Document
	var lastSyncedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, user_id, is_public, created_at, updated_at, last_synced_at FROM documents WHERE id = ?", id).
		Scan(&document.ID, &document.Title, &document.Content, &document.UserID, &document.IsPublic,
			&document.CreatedAt, &document.UpdatedAt, &lastSyncedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
		}
		logrus.WithField("document_id", id).WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	if lastSyncedAt.Valid {
		document.LastSyncedAt = &lastSyncedAt.Time
	}
	return &document, nil
}

func (s *sqliteStore) ListDocumentsByUser(ctx context.Context, userID string) ([]*core.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, content, user_id, is_public, created_at, updated_at, last_synced_at FROM documents WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	documents := make([]*core.Document, 0)
	for rows.Next() {
		var document core.Document
		var lastSyncedAt sql.NullTime
		if err := rows.Scan(&document.ID, &document.Title, &document.Content, &document.UserID,
			&document.IsPublic, &document.CreatedAt, &document.UpdatedAt, &lastSyncedAt); err != nil {
			return nil, err
		}
		if lastSyncedAt.Valid {
			document.LastSyncedAt = &lastSyncedAt.Time
		}
		documents = append(documents, &document)
	}
	return documents, rows.Err()
}

func (s *sqliteStore) CreateDocument(ctx context.Context, document *core.Document) (*core.Document, error) {
	now := time.Now()
	created := *document
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LastSyncedAt = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO documents (id, title, content, user_id, is_public, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		created.ID, created.Title, created.Content, created.UserID, created.IsPublic, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		logrus.WithField("user_id", created.UserID).WithError(err).Error("Failed to create document")
		return nil, err
	}

	if err := appendVersion(ctx, tx, created.ID, created.Content, created.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"document_id": created.ID,
		"user_id":     created.UserID,
	}).Info("Document created successfully")
	return &created, nil
}

func (s *sqliteStore) UpdateDocument(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var document core.Document
	var lastSyncedAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		"SELECT id, title, content, user_id, is_public, created_at, updated_at, last_synced_at FROM documents WHERE id = ?", id).
		Scan(&document.ID, &document.Title, &document.Content, &document.UserID, &document.IsPublic,
			&document.CreatedAt, &document.UpdatedAt, &lastSyncedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	if lastSyncedAt.Valid {
		document.LastSyncedAt = &lastSyncedAt.Time
	}

	if patch.Title != nil {
		document.Title = *patch.Title
	}
	if patch.Content != nil {
		document.Content = *patch.Content
	}
	if patch.IsPublic != nil {
		document.IsPublic = *patch.IsPublic
	}
	if patch.LastSyncedAt != nil {
		document.LastSyncedAt = patch.LastSyncedAt
	}
	document.UpdatedAt = time.Now()

	var syncedAt any
	if document.LastSyncedAt != nil {
		syncedAt = *document.LastSyncedAt
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE documents SET title = ?, content = ?, is_public = ?, updated_at = ?, last_synced_at = ? WHERE id = ?",
		document.Title, document.Content, document.IsPublic, document.UpdatedAt, syncedAt, id)
	if err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to update document")
		return nil, err
	}

	if patch.Content != nil {
		if err := appendVersion(ctx, tx, id, *patch.Content, document.UserID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &document, nil
}

func (s *sqliteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_versions WHERE document_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) GetDocumentVersions(ctx context.Context, documentID string) ([]*core.DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, content, version, created_by, created_at FROM document_versions WHERE document_id = ? ORDER BY version ASC", documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]*core.DocumentVersion, 0)
	for rows.Next() {
		var version core.DocumentVersion
		if err := rows.Scan(&version.ID, &version.DocumentID, &version.Content, &version.Version,
			&version.CreatedBy, &version.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, &version)
	}
	return versions, rows.Err()
}

// appendVersion inserts the next version row for a document within tx.
func appendVersion(ctx context.Context, tx *sql.Tx, documentID, content, createdBy string) error {
	var next int
	err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM document_versions WHERE document_id = ?", documentID).Scan(&next)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO document_versions (id, document_id, content, version, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		ulid.Make().String(), documentID, content, next, createdBy, time.Now())
	return err
}
