package session

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// InterceptedPrefix namespaces keys holding captured payment payloads so a
// session clear can remove exactly those entries without touching unrelated
// state.
const InterceptedPrefix = "ramp.intercepted."

// Store is a per-session key/value store for client-local state.
type Store struct {
	mu     sync.RWMutex
	values map[string]map[string]string // sessionID -> key -> value
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{values: make(map[string]map[string]string)}
}

// Set stores one value for a session.
func (s *Store) Set(sessionID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[sessionID] == nil {
		s.values[sessionID] = make(map[string]string)
	}
	s.values[sessionID][key] = value
}

// Get reads one value.
func (s *Store) Get(sessionID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[sessionID][key]
	return v, ok
}

// SetIntercepted stores a captured payment payload under the namespaced prefix.
func (s *Store) SetIntercepted(sessionID, key, value string) {
	s.Set(sessionID, InterceptedPrefix+key, value)
}

// InterceptedKeys lists the intercepted-payload keys of a session, prefix
// stripped.
func (s *Store) InterceptedKeys(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values[sessionID] {
		if strings.HasPrefix(k, InterceptedPrefix) {
			keys = append(keys, strings.TrimPrefix(k, InterceptedPrefix))
		}
	}
	return keys
}

// ClearIntercepted removes exactly the intercepted-payload keys of a session,
// leaving all other keys alone. Returns the number of keys removed.
func (s *Store) ClearIntercepted(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k := range s.values[sessionID] {
		if strings.HasPrefix(k, InterceptedPrefix) {
			delete(s.values[sessionID], k)
			removed++
		}
	}
	return removed
}

// ClearCookies expires every cookie carried by the request. Cookies are wiped
// wholesale on session clear; only the key/value store is selective.
func ClearCookies(c *gin.Context) {
	for _, cookie := range c.Request.Cookies() {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:   cookie.Name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}
