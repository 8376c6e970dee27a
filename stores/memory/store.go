package memory

import (
	"context"
	"fmt"
	"mdcollab/core"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements both DocumentStore and UserStore with in-memory maps.
// State is volatile; it is the reference store for development and tests.
type memStore struct {
	mu        sync.RWMutex
	users     map[string]core.User
	documents map[string]core.Document
	versions  map[string][]core.DocumentVersion
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		users:     make(map[string]core.User),
		documents: make(map[string]core.Document),
		versions:  make(map[string][]core.DocumentVersion),
	}
}

// UserStore implementation

func (s *memStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[id]; ok {
		return &user, nil
	}
	logrus.WithField("user_id", id).Warn("User with specified ID not found")
	return nil, fmt.Errorf("user with id %s: %w", id, core.ErrNotFound)
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			user := user
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
}

func (s *memStore) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	s.users[created.ID] = created

	logrus.WithFields(logrus.Fields{
		"user_id":  created.ID,
		"username": created.Username,
	}).Info("User created successfully")
	return &created, nil
}

// DocumentStore implementation

func (s *memStore) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if document, ok := s.documents[id]; ok {
		return &document, nil
	}
	logrus.WithField("document_id", id).Warn("Document with specified ID not found")
	return nil, fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
}

func (s *memStore) ListDocumentsByUser(ctx context.Context, userID string) ([]*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	documents := make([]*core.Document, 0)
	for _, document := range s.documents {
		if document.UserID == userID {
			document := document
			documents = append(documents, &document)
		}
	}
	logrus.WithField("user_id", userID).Infof("Listed %d documents", len(documents))
	return documents, nil
}

func (s *memStore) CreateDocument(ctx context.Context, document *core.Document) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	created := *document
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LastSyncedAt = nil
	s.documents[created.ID] = created

	// Every document starts its history at version 1.
	s.appendVersionLocked(created.ID, created.Content, created.UserID)

	logrus.WithFields(logrus.Fields{
		"document_id": created.ID,
		"user_id":     created.UserID,
	}).Info("Document created successfully")
	return &created, nil
}

func (s *memStore) UpdateDocument(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	document, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
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
	s.documents[id] = document

	if patch.Content != nil {
		s.appendVersionLocked(id, *patch.Content, document.UserID)
	}

	logrus.WithField("document_id", id).Info("Document updated successfully")
	return &document, nil
}

func (s *memStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
	}
	delete(s.documents, id)
	delete(s.versions, id)

	logrus.WithField("document_id", id).Info("Document deleted successfully")
	return nil
}

func (s *memStore) GetDocumentVersions(ctx context.Context, documentID string) ([]*core.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.versions[documentID]
	versions := make([]*core.DocumentVersion, 0, len(stored))
	for _, version := range stored {
		version := version
		versions = append(versions, &version)
	}
	return versions, nil
}

// appendVersionLocked records the next content revision. Callers must hold
// the write lock.
func (s *memStore) appendVersionLocked(documentID, content, createdBy string) {
	versions := s.versions[documentID]
	s.versions[documentID] = append(versions, core.DocumentVersion{
		ID:         ulid.Make().String(),
		DocumentID: documentID,
		Content:    content,
		Version:    len(versions) + 1,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	})
}
