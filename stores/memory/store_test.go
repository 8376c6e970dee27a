package memory

import (
	"context"
	"errors"
	"mdcollab/core"
	"sync"
	"testing"
)

func TestCreateUser_AssignsIDAndTimestamps(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &core.User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() returned empty ID")
	}
	// ULIDs are 26 characters.
	if len(user.ID) != 26 {
		t.Errorf("CreateUser() returned invalid ID length: got %d, want 26", len(user.ID))
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("CreateUser() must stamp timestamps")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.GetUser(ctx, "nonexistent-id")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetUser() error must wrap core.ErrNotFound, got %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.CreateUser(ctx, &core.User{
		Email:        "bob@example.com",
		Username:     "bob",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	user, err := store.GetUserByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() failed: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("GetUserByEmail() ID mismatch: got %s, want %s", user.ID, created.ID)
	}
	if user.PasswordHash != "hash" {
		t.Errorf("GetUserByEmail() must return the password hash, got %q", user.PasswordHash)
	}

	if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetUserByEmail() for unknown email must wrap core.ErrNotFound, got %v", err)
	}
}

func TestCreateDocument_RecordsVersionOne(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	document, err := store.CreateDocument(ctx, &core.Document{
		Title:   "notes",
		Content: "hello",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	versions, err := store.GetDocumentVersions(ctx, document.ID)
	if err != nil {
		t.Fatalf("GetDocumentVersions() failed: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("Expected 1 version after create, got %d", len(versions))
	}
	if versions[0].Version != 1 {
		t.Errorf("First version number: got %d, want 1", versions[0].Version)
	}
	if versions[0].Content != "hello" {
		t.Errorf("First version content: got %q, want %q", versions[0].Content, "hello")
	}
	if versions[0].CreatedBy != "user-1" {
		t.Errorf("First version createdBy: got %s, want user-1", versions[0].CreatedBy)
	}
}

func TestUpdateDocument_ContentAppendsVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	document, err := store.CreateDocument(ctx, &core.Document{
		Title:   "notes",
		Content: "v1",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	content := "v2"
	updated, err := store.UpdateDocument(ctx, document.ID, core.DocumentPatch{Content: &content})
	if err != nil {
		t.Fatalf("UpdateDocument() failed: %v", err)
	}
	if updated.Content != "v2" {
		t.Errorf("Updated content: got %q, want %q", updated.Content, "v2")
	}

	versions, err := store.GetDocumentVersions(ctx, document.ID)
	if err != nil {
		t.Fatalf("GetDocumentVersions() failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("Expected 2 versions after content update, got %d", len(versions))
	}
	if versions[1].Version != 2 {
		t.Errorf("Second version number: got %d, want 2", versions[1].Version)
	}
}

func TestUpdateDocument_MetadataOnlyKeepsHistory(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	document, err := store.CreateDocument(ctx, &core.Document{
		Title:   "notes",
		Content: "v1",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	isPublic := true
	title := "renamed"
	updated, err := store.UpdateDocument(ctx, document.ID, core.DocumentPatch{
		Title:    &title,
		IsPublic: &isPublic,
	})
	if err != nil {
		t.Fatalf("UpdateDocument() failed: %v", err)
	}
	if !updated.IsPublic || updated.Title != "renamed" {
		t.Errorf("Patch not applied: %+v", updated)
	}
	if updated.Content != "v1" {
		t.Errorf("Content must be untouched, got %q", updated.Content)
	}

	versions, _ := store.GetDocumentVersions(ctx, document.ID)
	if len(versions) != 1 {
		t.Errorf("Metadata update must not append a version, got %d versions", len(versions))
	}
}

func TestUpdateDocument_NotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	content := "text"
	_, err := store.UpdateDocument(ctx, "nonexistent-id", core.DocumentPatch{Content: &content})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateDocument() error must wrap core.ErrNotFound, got %v", err)
	}
}

func TestDeleteDocument_DropsVersions(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	document, err := store.CreateDocument(ctx, &core.Document{
		Title:   "notes",
		Content: "v1",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	if err := store.DeleteDocument(ctx, document.ID); err != nil {
		t.Fatalf("DeleteDocument() failed: %v", err)
	}

	if _, err := store.GetDocument(ctx, document.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetDocument() after delete must wrap core.ErrNotFound, got %v", err)
	}
	versions, err := store.GetDocumentVersions(ctx, document.ID)
	if err != nil {
		t.Fatalf("GetDocumentVersions() failed: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("Expected no versions after delete, got %d", len(versions))
	}
}

func TestListDocumentsByUser(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CreateDocument(ctx, &core.Document{
			Title:   "notes",
			Content: "x",
			UserID:  "user-1",
		}); err != nil {
			t.Fatalf("CreateDocument() failed: %v", err)
		}
	}
	if _, err := store.CreateDocument(ctx, &core.Document{
		Title:   "other",
		Content: "y",
		UserID:  "user-2",
	}); err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	documents, err := store.ListDocumentsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListDocumentsByUser() failed: %v", err)
	}
	if len(documents) != 3 {
		t.Errorf("Expected 3 documents for user-1, got %d", len(documents))
	}
}

func TestConcurrentDocumentUpdates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	document, err := store.CreateDocument(ctx, &core.Document{
		Title:   "notes",
		Content: "v0",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	numWriters := 10
	var wg sync.WaitGroup
	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			content := "writer-" + string(rune('0'+index))
			if _, err := store.UpdateDocument(ctx, document.ID, core.DocumentPatch{Content: &content}); err != nil {
				t.Errorf("Concurrent UpdateDocument() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	versions, err := store.GetDocumentVersions(ctx, document.ID)
	if err != nil {
		t.Fatalf("GetDocumentVersions() failed: %v", err)
	}
	// Initial version plus one per writer, numbered consecutively.
	if len(versions) != numWriters+1 {
		t.Fatalf("Expected %d versions, got %d", numWriters+1, len(versions))
	}
	for i, version := range versions {
		if version.Version != i+1 {
			t.Errorf("Version %d has number %d", i, version.Version)
		}
	}
}
