package api

import (
	"net/http"

	"github.com/go-chi/render"
)

// Envelope is the response body every REST endpoint answers with.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(w http.ResponseWriter, r *http.Request, message string, data any) {
	render.JSON(w, r, Envelope{Success: true, Message: message, Data: data})
}

func Fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, Envelope{Success: false, Message: message})
}
