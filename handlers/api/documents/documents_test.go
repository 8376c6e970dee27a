package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"mdcollab/core"
	"mdcollab/handlers/auth"
	"mdcollab/middleware"
	"mdcollab/stores"
	"mdcollab/stores/memory"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// newTestRouter mounts the document routes behind a middleware that injects
// claims for the given user, standing in for the JWT layer.
func newTestRouter(store stores.Store, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &auth.AppClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
				Username:         "tester",
			}
			ctx := context.WithValue(req.Context(), middleware.ClaimsContextKey, claims)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", HandleList(store))
		r.Post("/", HandleCreate(store))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", HandleGet(store))
			r.Put("/", HandleUpdate(store))
			r.Delete("/", HandleDelete(store))
			r.Get("/versions", HandleVersions(store))
		})
	})
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return recorder, env
}

func seedDocument(t *testing.T, store stores.Store, userID, title, content string, isPublic bool) *core.Document {
	t.Helper()
	document, err := store.CreateDocument(context.Background(), &core.Document{
		Title:    title,
		Content:  content,
		UserID:   userID,
		IsPublic: isPublic,
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return document
}

func TestHandleCreate_ThenList(t *testing.T) {
	store := memory.NewStore()
	router := newTestRouter(store, "user-1")

	recorder, env := doRequest(t, router, http.MethodPost, "/documents", map[string]any{
		"title":   "notes",
		"content": "hello",
	})
	if recorder.Code != http.StatusOK || !env.Success {
		t.Fatalf("create failed: %d %s", recorder.Code, env.Message)
	}

	recorder, env = doRequest(t, router, http.MethodGet, "/documents", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list failed: %d", recorder.Code)
	}
	var payload struct {
		Documents []documentSummary `json:"documents"`
		Total     int               `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal list payload: %v", err)
	}
	if payload.Total != 1 || len(payload.Documents) != 1 {
		t.Fatalf("Expected 1 document, got %d", payload.Total)
	}
	if payload.Documents[0].Title != "notes" {
		t.Errorf("Title: got %q, want %q", payload.Documents[0].Title, "notes")
	}
}

func TestHandleCreate_ValidatesTitle(t *testing.T) {
	store := memory.NewStore()
	router := newTestRouter(store, "user-1")

	recorder, _ := doRequest(t, router, http.MethodPost, "/documents", map[string]any{
		"title": "",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("empty title: got %d, want 400", recorder.Code)
	}

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	recorder, _ = doRequest(t, router, http.MethodPost, "/documents", map[string]any{
		"title": string(long),
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("long title: got %d, want 400", recorder.Code)
	}
}

func TestHandleGet_PublicAndPrivateAccess(t *testing.T) {
	store := memory.NewStore()
	private := seedDocument(t, store, "owner", "private", "x", false)
	public := seedDocument(t, store, "owner", "public", "y", true)

	guest := newTestRouter(store, "guest")

	recorder, env := doRequest(t, guest, http.MethodGet, "/documents/"+private.ID, nil)
	if recorder.Code != http.StatusForbidden || env.Message != "Access denied" {
		t.Errorf("private doc for guest: got %d %q", recorder.Code, env.Message)
	}

	recorder, _ = doRequest(t, guest, http.MethodGet, "/documents/"+public.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("public doc for guest: got %d, want 200", recorder.Code)
	}

	recorder, env = doRequest(t, guest, http.MethodGet, "/documents/nonexistent", nil)
	if recorder.Code != http.StatusNotFound || env.Message != "Document not found" {
		t.Errorf("missing doc: got %d %q", recorder.Code, env.Message)
	}
}

func TestHandleUpdate_OwnerOnly(t *testing.T) {
	store := memory.NewStore()
	document := seedDocument(t, store, "owner", "notes", "v1", true)

	// Public visibility does not grant write access over REST.
	guest := newTestRouter(store, "guest")
	recorder, _ := doRequest(t, guest, http.MethodPut, "/documents/"+document.ID, map[string]any{
		"content": "hijacked",
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("guest update: got %d, want 403", recorder.Code)
	}

	owner := newTestRouter(store, "owner")
	recorder, env := doRequest(t, owner, http.MethodPut, "/documents/"+document.ID, map[string]any{
		"content": "v2",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("owner update: got %d %s", recorder.Code, env.Message)
	}

	reloaded, err := store.GetDocument(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if reloaded.Content != "v2" {
		t.Errorf("Content: got %q, want %q", reloaded.Content, "v2")
	}
}

func TestHandleDelete_OwnerOnly(t *testing.T) {
	store := memory.NewStore()
	document := seedDocument(t, store, "owner", "notes", "v1", true)

	guest := newTestRouter(store, "guest")
	recorder, _ := doRequest(t, guest, http.MethodDelete, "/documents/"+document.ID, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("guest delete: got %d, want 403", recorder.Code)
	}

	owner := newTestRouter(store, "owner")
	recorder, _ = doRequest(t, owner, http.MethodDelete, "/documents/"+document.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("owner delete: got %d", recorder.Code)
	}

	recorder, _ = doRequest(t, owner, http.MethodGet, "/documents/"+document.ID, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("deleted doc: got %d, want 404", recorder.Code)
	}
}

func TestHandleVersions(t *testing.T) {
	store := memory.NewStore()
	document := seedDocument(t, store, "owner", "notes", "v1", true)

	content := "v2"
	if _, err := store.UpdateDocument(context.Background(), document.ID, core.DocumentPatch{Content: &content}); err != nil {
		t.Fatalf("UpdateDocument() failed: %v", err)
	}

	router := newTestRouter(store, "guest")
	recorder, env := doRequest(t, router, http.MethodGet, "/documents/"+document.ID+"/versions", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("versions: got %d %s", recorder.Code, env.Message)
	}

	var payload struct {
		Versions []core.DocumentVersion `json:"versions"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal versions payload: %v", err)
	}
	if len(payload.Versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(payload.Versions))
	}
	if payload.Versions[1].Version != 2 || payload.Versions[1].Content != "v2" {
		t.Errorf("Second version: %+v", payload.Versions[1])
	}
}

func TestHandleList_ScopedToOwner(t *testing.T) {
	store := memory.NewStore()
	seedDocument(t, store, "user-1", "mine", "x", false)
	seedDocument(t, store, "user-2", "theirs", "y", true)

	router := newTestRouter(store, "user-1")
	recorder, env := doRequest(t, router, http.MethodGet, "/documents", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list: got %d", recorder.Code)
	}
	var payload struct {
		Documents []documentSummary `json:"documents"`
		Total     int               `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal list payload: %v", err)
	}
	if payload.Total != 1 || payload.Documents[0].Title != "mine" {
		t.Errorf("Expected only the caller's document, got %+v", payload)
	}
}
