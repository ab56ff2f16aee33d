package moment

import (
	"encoding/json"
	"net/http"

	myMiddleware "firefly-live/internal/middleware"
)

// Handler exposes moment posting and the subscribed-moments feed.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Post serves POST /api/user-moments. Requires authentication; the author
// is taken from the request identity, never from the body.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var m Moment
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	m.UserID = userID

	if err := h.service.Post(r.Context(), &m); err != nil {
		http.Error(w, "post failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

// Feed serves GET /api/user-subscribed-moments for the authenticated user.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.service.SubscribedMoments(r.Context(), userID)
	if err != nil {
		http.Error(w, "feed query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
