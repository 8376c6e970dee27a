package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mdcollab/core"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// fsStore keeps users, documents, and version history as JSON files under a
// base path. A single mutex serializes read-modify-write cycles; the layout
// is one file per entity plus one file per document holding its versions.
type fsStore struct {
	mu       sync.Mutex
	basePath string
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"users", "documents", "versions"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create %s directory: %v", dir, err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) userPath(id string) string     { return filepath.Join(s.basePath, "users", id+".json") }
func (s *fsStore) documentPath(id string) string { return filepath.Join(s.basePath, "documents", id+".json") }
func (s *fsStore) versionsPath(id string) string { return filepath.Join(s.basePath, "versions", id+".json") }

// safeName rejects ids that would escape the base directory.
func safeName(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(data, out)
}

func writeJSON(path string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// UserStore implementation

func (s *fsStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	if err := safeName(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var record storedUserRecord
	found, err := readJSON(s.userPath(id), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("user with id %s: %w", id, core.ErrNotFound)
	}
	user := record.User
	user.PasswordHash = record.PasswordHash
	return &user, nil
}

func (s *fsStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usersDir := filepath.Join(s.basePath, "users")
	files, err := os.ReadDir(usersDir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var record storedUserRecord
		found, err := readJSON(filepath.Join(usersDir, file.Name()), &record)
		if err != nil || !found {
			logrus.WithError(err).Warnf("Failed to read user file %s, skipping", file.Name())
			continue
		}
		if record.Email == email {
			user := record.User
			user.PasswordHash = record.PasswordHash
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
}

func (s *fsStore) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := writeJSON(s.userPath(created.ID), storedUser(created)); err != nil {
		logrus.WithError(err).Error("Failed to write user file")
		return nil, err
	}
	return &created, nil
}

// storedUser re-adds the password hash, which core.User never serializes.
type storedUserRecord struct {
	core.User
	PasswordHash string `json:"passwordHash"`
}

func storedUser(user core.User) storedUserRecord {
	return storedUserRecord{User: user, PasswordHash: user.PasswordHash}
}

// DocumentStore implementation

func (s *fsStore) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	if err := safeName(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDocumentLocked(id)
}

func (s *fsStore) getDocumentLocked(id string) (*core.Document, error) {
	var document core.Document
	found, err := readJSON(s.documentPath(id), &document)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
	}
	return &document, nil
}

func (s *fsStore) ListDocumentsByUser(ctx context.Context, userID string) ([]*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	documentsDir := filepath.Join(s.basePath, "documents")
	files, err := os.ReadDir(documentsDir)
	if err != nil {
		return nil, err
	}

	documents := make([]*core.Document, 0)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var document core.Document
		found, err := readJSON(filepath.Join(documentsDir, file.Name()), &document)
		if err != nil || !found {
			logrus.WithError(err).Warnf("Failed to read document file %s, skipping", file.Name())
			continue
		}
		if document.UserID == userID {
			doc := document
			documents = append(documents, &doc)
		}
	}
	return documents, nil
}

func (s *fsStore) CreateDocument(ctx context.Context, document *core.Document) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	created := *document
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LastSyncedAt = nil

	if err := writeJSON(s.documentPath(created.ID), created); err != nil {
		logrus.WithError(err).Error("Failed to write document file")
		return nil, err
	}
	if err := s.appendVersionLocked(created.ID, created.Content, created.UserID); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *fsStore) UpdateDocument(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	if err := safeName(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.getDocumentLocked(id)
	if err != nil {
		return nil, err
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

	if err := writeJSON(s.documentPath(id), document); err != nil {
		logrus.WithError(err).Error("Failed to write document file")
		return nil, err
	}
	if patch.Content != nil {
		if err := s.appendVersionLocked(id, *patch.Content, document.UserID); err != nil {
			return nil, err
		}
	}
	return document, nil
}

func (s *fsStore) DeleteDocument(ctx context.Context, id string) error {
	if err := safeName(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.documentPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
		}
		return err
	}
	if err := os.Remove(s.versionsPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fsStore) GetDocumentVersions(ctx context.Context, documentID string) ([]*core.DocumentVersion, error) {
	if err := safeName(documentID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.readVersionsLocked(documentID)
	if err != nil {
		return nil, err
	}
	versions := make([]*core.DocumentVersion, 0, len(stored))
	for _, version := range stored {
		version := version
		versions = append(versions, &version)
	}
	return versions, nil
}

func (s *fsStore) readVersionsLocked(documentID string) ([]core.DocumentVersion, error) {
	var versions []core.DocumentVersion
	if _, err := readJSON(s.versionsPath(documentID), &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *fsStore) appendVersionLocked(documentID, content, createdBy string) error {
	versions, err := s.readVersionsLocked(documentID)
	if err != nil {
		return err
	}
	versions = append(versions, core.DocumentVersion{
		ID:         ulid.Make().String(),
		DocumentID: documentID,
		Content:    content,
		Version:    len(versions) + 1,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	})
	return writeJSON(s.versionsPath(documentID), versions)
}
