package core

import (
	"context"
	"time"
)

type (
	// Document is a markdown document owned by a user. Content holds the
	// current text; every content change is recorded as a DocumentVersion.
	Document struct {
		ID           string     `json:"id"`
		Title        string     `json:"title"`
		Content      string     `json:"content"`
		UserID       string     `json:"userId"`
		IsPublic     bool       `json:"isPublic"`
		CreatedAt    time.Time  `json:"createdAt"`
		UpdatedAt    time.Time  `json:"updatedAt"`
		LastSyncedAt *time.Time `json:"lastSyncedAt"`
	}

	// DocumentVersion is one historical revision of a document's content.
	// Version numbers start at 1 and increment with every content change.
	DocumentVersion struct {
		ID         string    `json:"id"`
		DocumentID string    `json:"documentId"`
		Content    string    `json:"content"`
		Version    int       `json:"version"`
		CreatedBy  string    `json:"createdBy"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	// DocumentPatch carries a partial update. Nil fields are left untouched.
	DocumentPatch struct {
		Title        *string
		Content      *string
		IsPublic     *bool
		LastSyncedAt *time.Time
	}

	// DocumentStore defines the persistence layer for documents and their
	// version history.
	DocumentStore interface {
		// GetDocument returns a document by id. Returns ErrNotFound when absent.
		GetDocument(ctx context.Context, id string) (*Document, error)

		// ListDocumentsByUser returns every document owned by a user.
		ListDocumentsByUser(ctx context.Context, userID string) ([]*Document, error)

		// CreateDocument stores a new document, assigns its id and timestamps,
		// and records version 1 of its content.
		CreateDocument(ctx context.Context, document *Document) (*Document, error)

		// UpdateDocument applies a partial update. A content change appends
		// the next version record.
		UpdateDocument(ctx context.Context, id string, patch DocumentPatch) (*Document, error)

		// DeleteDocument removes a document and its version history.
		DeleteDocument(ctx context.Context, id string) error

		// GetDocumentVersions returns a document's versions in ascending order.
		GetDocumentVersions(ctx context.Context, documentID string) ([]*DocumentVersion, error)
	}
)

// CanAccess reports whether a user may act on the document: the owner always
// can, anyone can when the document is public.
func (d *Document) CanAccess(userID string) bool {
	return d.UserID == userID || d.IsPublic
}
