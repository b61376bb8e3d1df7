// Package preview hands out revocable references to displayable image bytes.
//
// A Handle stays resolvable until whoever created it revokes it. The store
// never revokes on a caller's behalf; Slot implements the replace-then-revoke
// discipline for callers that show one preview at a time.
package preview

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

// URLPrefix is the scheme-and-authority part of every handle URL.
const URLPrefix = "blob:leaf-doctor/"

// ErrRevoked is returned when resolving a handle that was revoked or never existed.
var ErrRevoked = errors.New("preview handle revoked or unknown")

// Handle is a revocable reference to preview bytes.
type Handle struct {
	ID  string
	URL string
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

type entry struct {
	data        []byte
	contentType string
}

// Store holds the bytes behind live handles.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Create registers data and returns a new handle for it. The bytes are copied.
func (s *Store) Create(data []byte, contentType string) Handle {
	id := uuid.NewString()
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.entries[id] = entry{data: buf, contentType: contentType}
	s.mu.Unlock()

	return Handle{ID: id, URL: URLPrefix + id}
}

// DeriveFromArtifact creates a handle showing the normalized artifact.
func (s *Store) DeriveFromArtifact(a types.Artifact) Handle {
	return s.Create(a.Data, a.ContentType)
}

// DeriveFromBytes creates a handle showing an original upload.
func (s *Store) DeriveFromBytes(data []byte) Handle {
	return s.Create(data, http.DetectContentType(data))
}

// Revoke releases h. It reports whether the handle was still live.
func (s *Store) Revoke(h Handle) bool {
	if h.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[h.ID]; !ok {
		return false
	}
	delete(s.entries, h.ID)
	return true
}

// Open resolves a handle URL (or bare id) to its bytes.
func (s *Store) Open(ref string) ([]byte, string, error) {
	id := strings.TrimPrefix(ref, URLPrefix)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrRevoked
	}
	return e.data, e.contentType, nil
}

// Live returns the number of unrevoked handles.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Handler serves GET /preview/{id} so handles can be displayed by a browser or viewer.
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/preview/{id}", s.handlePreview)
	return r
}

func (s *Store) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.Open(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
