package danmu

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// timeLayout matches the client-facing time format for range queries.
const timeLayout = "2006-01-02 15:04:05"

// Handler exposes the history query over HTTP.
type Handler struct {
	history *History
}

func NewHandler(history *History) *Handler {
	return &Handler{history: history}
}

// GetHistory serves GET /api/danmus?videoId=7&startTime=...&endTime=...
// The time bounds are optional but must be supplied together.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	videoID, err := strconv.ParseInt(r.URL.Query().Get("videoId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid videoId", http.StatusBadRequest)
		return
	}

	var from, to time.Time
	startStr := r.URL.Query().Get("startTime")
	endStr := r.URL.Query().Get("endTime")
	if startStr != "" && endStr != "" {
		if from, err = time.Parse(timeLayout, startStr); err != nil {
			http.Error(w, "invalid startTime", http.StatusBadRequest)
			return
		}
		if to, err = time.Parse(timeLayout, endStr); err != nil {
			http.Error(w, "invalid endTime", http.StatusBadRequest)
			return
		}
	}

	list, err := h.history.Query(r.Context(), videoID, from, to)
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
