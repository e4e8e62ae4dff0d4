// Package devstub is a local stand-in for the ingest service: it "opens pull
// requests" by writing files under a directory, serves them back for
// editing, and approves COG URLs by extension.
package devstub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stacingest/domain/ingest"
	"stacingest/internal"
	"stacingest/ports"
)

// PullURLBase prefixes the fake pull request URLs
const PullURLBase = "https://github.com/stacingest/devstub/pull/"

type pull struct {
	Type     ingest.IngestionType
	FilePath string
	Comment  string
}

// Server implements the ingest service endpoints
type Server struct {
	store  *LocalStore
	logger *internal.Logger

	mu    sync.Mutex
	next  int
	pulls map[string]*pull
}

// NewServer creates a stub writing into store
func NewServer(store *LocalStore, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Server{store: store, logger: logger, pulls: make(map[string]*pull)}
}

// Router returns the chi router serving the stub
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/create-ingest", s.handleCreate)
		r.Put("/create-ingest", s.handleUpdate)
		r.Get("/retrieve-ingest", s.handleRetrieve)
		r.Get("/validate-cog", s.handleValidateCOG)
	})
	return r
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload ports.IngestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	if !payload.IngestionType.Valid() {
		writeError(w, http.StatusBadRequest, "ingestionType must be dataset or collection")
		return
	}
	identity, ok := payload.IngestionType.Identity(payload.Data)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("data is missing required field %q", payload.IngestionType.IdentityField()))
		return
	}

	filePath := ingest.StagingPath(payload.IngestionType, identity)
	if _, err := s.store.Write(r.Context(), filePath, payload.Data); err != nil {
		s.logger.Error("[DevStub] write %s: %v", filePath, err)
		writeError(w, http.StatusInternalServerError, "failed to write ingest file")
		return
	}

	s.mu.Lock()
	s.next++
	n := s.next
	s.pulls[Ref(n)] = &pull{Type: payload.IngestionType, FilePath: filePath, Comment: payload.UserComment}
	s.mu.Unlock()

	s.logger.Info("[DevStub] %s written to %s as %s", identity, filePath, Ref(n))
	writeJSON(w, http.StatusOK, ports.PRResult{GithubURL: fmt.Sprintf("%s%d", PullURLBase, n)})
}

type updateBody struct {
	Ref      string          `json:"ref"`
	FileSHA  string          `json:"fileSha"`
	FilePath string          `json:"filePath"`
	FormData ingest.Document `json:"formData"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	p, ok := s.lookup(body.Ref)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown ref %q", body.Ref))
		return
	}
	if body.FilePath != p.FilePath {
		writeError(w, http.StatusConflict, "filePath does not match the ref")
		return
	}

	_, sha, err := s.store.Read(r.Context(), p.FilePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read ingest file")
		return
	}
	if body.FileSHA != sha {
		writeError(w, http.StatusConflict, "file changed since it was loaded")
		return
	}
	if _, err := s.store.Write(r.Context(), p.FilePath, body.FormData); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write ingest file")
		return
	}
	s.logger.Info("[DevStub] updated %s on %s", p.FilePath, body.Ref)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	p, ok := s.lookup(ref)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown ref %q", ref))
		return
	}
	if typ := r.URL.Query().Get("ingestionType"); typ != "" && typ != p.Type.String() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("ref %q is not a %s", ref, typ))
		return
	}
	doc, sha, err := s.store.Read(r.Context(), p.FilePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read ingest file")
		return
	}
	writeJSON(w, http.StatusOK, ports.RetrievedIngest{FileSHA: sha, FilePath: p.FilePath, Content: doc})
}

func (s *Server) handleValidateCOG(w http.ResponseWriter, r *http.Request) {
	u := strings.ToLower(r.URL.Query().Get("url"))
	if u == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	valid := strings.HasSuffix(u, ".tif") || strings.HasSuffix(u, ".tiff")
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) lookup(ref string) (*pull, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pulls[ref]
	return p, ok
}

// Ref is the branch name the stub gives its n-th pull request
func Ref(n int) string {
	return fmt.Sprintf("stub-%d", n)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
