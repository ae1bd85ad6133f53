package directory

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler returns the directory service HTTP API routed over the given
// registry:
//
//	POST   /peers        register or refresh an entry
//	GET    /peers        list all live entries
//	DELETE /peers/{id}   deregister an entry
//	GET    /health       liveness probe
func Handler(reg *Registry) http.Handler {
	r := chi.NewRouter()

	r.Post("/peers", func(w http.ResponseWriter, req *http.Request) {
		var entry Entry
		if err := json.NewDecoder(req.Body).Decode(&entry); err != nil {
			http.Error(w, "invalid entry", http.StatusBadRequest)
			return
		}
		if entry.ID == "" || entry.Addr == "" {
			http.Error(w, "id and addr are required", http.StatusBadRequest)
			return
		}
		reg.Put(entry)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/peers", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.List()); err != nil {
			log.Printf("[directory] encode list: %v", err)
		}
	})

	r.Delete("/peers/{id}", func(w http.ResponseWriter, req *http.Request) {
		reg.Remove(chi.URLParam(req, "id"))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := struct {
			Status string `json:"status"`
			Peers  int    `json:"peers"`
		}{Status: "ok", Peers: reg.Count()}
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}
