package documents

import (
	"errors"
	"mdcollab/core"
	"mdcollab/handlers/api"
	"mdcollab/handlers/auth"
	"mdcollab/middleware"
	"mdcollab/stores"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// documentSummary is the list-view shape: content is omitted to keep the
// response light.
type documentSummary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	UserID       string     `json:"userId"`
	IsPublic     bool       `json:"isPublic"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
}

type createRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPublic bool   `json:"isPublic"`
}

type updateRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	IsPublic *bool   `json:"isPublic"`
}

func currentUserID(r *http.Request) (string, bool) {
	claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}

func HandleList(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			api.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		documents, err := store.ListDocumentsByUser(r.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":   err,
				"user_id": userID,
			}).Error("Failed to list documents")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to retrieve documents")
			return
		}

		summaries := make([]documentSummary, 0, len(documents))
		for _, document := range documents {
			summaries = append(summaries, documentSummary{
				ID:           document.ID,
				Title:        document.Title,
				UserID:       document.UserID,
				IsPublic:     document.IsPublic,
				CreatedAt:    document.CreatedAt,
				UpdatedAt:    document.UpdatedAt,
				LastSyncedAt: document.LastSyncedAt,
			})
		}

		api.OK(w, r, "Documents retrieved successfully", map[string]any{
			"documents": summaries,
			"total":     len(summaries),
		})
	}
}

func HandleCreate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			api.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		var req createRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			api.Fail(w, r, http.StatusBadRequest, "Invalid input")
			return
		}
		if req.Title == "" || len(req.Title) > 255 {
			api.Fail(w, r, http.StatusBadRequest, "Title must be between 1 and 255 characters")
			return
		}

		document, err := store.CreateDocument(r.Context(), &core.Document{
			Title:    req.Title,
			Content:  req.Content,
			UserID:   userID,
			IsPublic: req.IsPublic,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":   err,
				"user_id": userID,
			}).Error("Failed to create document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to create document")
			return
		}

		api.OK(w, r, "Document created successfully", map[string]any{"document": document})
	}
}

func HandleGet(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			api.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		id := chi.URLParam(r, "id")
		document, err := store.GetDocument(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				api.Fail(w, r, http.StatusNotFound, "Document not found")
				return
			}
			logrus.WithField("document_id", id).WithError(err).Error("Failed to retrieve document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to retrieve document")
			return
		}

		if !document.CanAccess(userID) {
			api.Fail(w, r, http.StatusForbidden, "Access denied")
			return
		}

		api.OK(w, r, "Document retrieved successfully", map[string]any{"document": document})
	}
}

func HandleUpdate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			api.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		id := chi.URLParam(r, "id")
		existing, err := store.GetDocument(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				api.Fail(w, r, http.StatusNotFound, "Document not found")
				return
			}
			logrus.WithField("document_id", id).WithError(err).Error("Failed to retrieve document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to update document")
			return
		}

		// Only the owner may change a document through the REST surface.
		if existing.UserID != userID {
			api.Fail(w, r, http.StatusForbidden, "Access denied")
			return
		}

		var req updateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			api.Fail(w, r, http.StatusBadRequest, "Invalid input")
			return
		}
		if req.Title != nil && (*req.Title == "" || len(*req.Title) > 255) {
			api.Fail(w, r, http.StatusBadRequest, "Title must be between 1 and 255 characters")
			return
		}

		document, err := store.UpdateDocument(r.Context(), id, core.DocumentPatch{
			Title:    req.Title,
			Content:  req.Content,
			IsPublic: req.IsPublic,
		})
		if err != nil {
			logrus.WithField("document_id", id).WithError(err).Error("Failed to update document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to update document")
			return
		}

		api.OK(w, r, "Document updated successfully", map[string]any{"document": document})
	}
}

func HandleDelete(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			api.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		id := chi.URLParam(r, "id")
		document, err := store.GetDocument(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				api.Fail(w, r, http.StatusNotFound, "Document not found")
				return
			}
			logrus.WithField("document_id", id).WithError(err).Error("Failed to retrieve document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to delete document")
			return
		}

		if document.UserID != userID {
			api.Fail(w, r, http.StatusForbidden, "Access denied")
			return
		}

		if err := store.DeleteDocument(r.Context(), id); err != nil {
			logrus.WithField("document_id", id).WithError(err).Error("Failed to delete document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to delete document")
			return
		}

		api.OK(w, r, "Document deleted successfully", nil)
	}
}

func HandleVersions(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			api.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		id := chi.URLParam(r, "id")
		document, err := store.GetDocument(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				api.Fail(w, r, http.StatusNotFound, "Document not found")
				return
			}
			logrus.WithField("document_id", id).WithError(err).Error("Failed to retrieve document")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to retrieve document versions")
			return
		}

		if !document.CanAccess(userID) {
			api.Fail(w, r, http.StatusForbidden, "Access denied")
			return
		}

		versions, err := store.GetDocumentVersions(r.Context(), id)
		if err != nil {
			logrus.WithField("document_id", id).WithError(err).Error("Failed to retrieve document versions")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to retrieve document versions")
			return
		}

		api.OK(w, r, "Document versions retrieved successfully", map[string]any{"versions": versions})
	}
}
