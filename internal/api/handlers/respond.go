package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/modelry/modelry/internal/api/dto"
	"github.com/modelry/modelry/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStoreError maps the store error taxonomy onto HTTP. Internal causes
// are never exposed; callers see only the stable kind and description.
func writeStoreError(w http.ResponseWriter, err error) {
	kind := store.KindOf(err)
	message := err.Error()
	if kind == store.KindInternal {
		message = "internal error"
	}
	writeJSON(w, kind.HTTPStatus(), dto.ErrorResponse{
		Error: message,
		Kind:  kind.String(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
		Error: message,
		Kind:  store.KindBadRequest.String(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}
