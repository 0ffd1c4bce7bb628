package journal

import (
	"encoding/json"
	"net/http"
	"time"

	store "github.com/kilianp07/railsched/core/journal"
)

// NewHandler returns an HTTP handler exposing journal records via GET /api/journal.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
// Filters: start and end (RFC3339), kind, schedule_id, event_id.
func NewHandler(s store.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		params := r.URL.Query()
		q := store.Query{
			Kind:       store.Kind(params.Get("kind")),
			ScheduleID: params.Get("schedule_id"),
			EventID:    params.Get("event_id"),
		}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			v := params.Get(name)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid "+name+": "+err.Error(), http.StatusBadRequest)
				return
			}
			*dst = t
		}
		records, err := s.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []store.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
