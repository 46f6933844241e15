package web

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
)

// Handler function serving the most recent visualisation image of the given kind from the experiment directory
func (s *Server) Image() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := mux.Vars(r)["kind"]
		s.Lock()
		iter := s.images
		s.Unlock()
		if iter == 0 {
			http.NotFound(w, r)
			return
		}
		path := filepath.Join(s.Experiment, fmt.Sprintf("%s_%d.png", kind, iter))
		if _, err := os.Stat(path); err != nil {
			log.Printf("image not found: %s\n", path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, path)
	}
}
