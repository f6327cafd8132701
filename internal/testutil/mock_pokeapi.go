// Package testutil provides an in-process stand-in for the catalog and
// category services.
package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockResponse overrides the generated response for one request key.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockPokeAPI serves /pokemon?limit=n, /type and /type/{name} from
// in-memory data. Request keys are the path plus the raw query, e.g.
// "/pokemon?limit=20" or "/type/water".
type MockPokeAPI struct {
	server *httptest.Server

	mu         sync.Mutex
	catalog    []string
	categories []string
	members    map[string][]string
	overrides  map[string]MockResponse
	holds      map[string]chan struct{}
	counts     map[string]int
	closing    chan struct{}

	requestCount     int
	conditionalCount int
	lastHeader       http.Header
}

// NewMockPokeAPI starts a mock server with a catalog of n entries named
// p1..pn and no categories.
func NewMockPokeAPI(n int) *MockPokeAPI {
	m := &MockPokeAPI{
		members:   make(map[string][]string),
		overrides: make(map[string]MockResponse),
		holds:     make(map[string]chan struct{}),
		counts:    make(map[string]int),
		closing:   make(chan struct{}),
	}
	m.catalog = Names("p", n)
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// Names returns prefix1..prefixN.
func Names(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = prefix + strconv.Itoa(i+1)
	}
	return names
}

// URL returns the base URL to use for both services.
func (m *MockPokeAPI) URL() string {
	return m.server.URL
}

// Close releases held requests and shuts the server down.
func (m *MockPokeAPI) Close() {
	m.mu.Lock()
	select {
	case <-m.closing:
	default:
		close(m.closing)
	}
	m.mu.Unlock()
	m.server.Close()
}

// SetCatalog replaces the unfiltered catalog.
func (m *MockPokeAPI) SetCatalog(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = append([]string(nil), names...)
}

// SetCategories replaces the category list.
func (m *MockPokeAPI) SetCategories(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append([]string(nil), names...)
}

// SetCategory sets the members of one category and adds it to the list if missing.
func (m *MockPokeAPI) SetCategory(name string, members ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[name] = append([]string(nil), members...)
	for _, c := range m.categories {
		if c == name {
			return
		}
	}
	m.categories = append(m.categories, name)
}

// SetResponse overrides the response for key.
func (m *MockPokeAPI) SetResponse(key string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = resp
}

// SetStatus makes key fail with the given status code.
func (m *MockPokeAPI) SetStatus(key string, status int) {
	m.SetResponse(key, MockResponse{StatusCode: status, Body: http.StatusText(status)})
}

// ClearResponse removes an override set for key.
func (m *MockPokeAPI) ClearResponse(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, key)
}

// Hold blocks requests for key until the returned release func is called.
func (m *MockPokeAPI) Hold(key string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[key] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.holds[key] == ch {
				delete(m.holds, key)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Count returns how many requests were received for key.
func (m *MockPokeAPI) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

// RequestCount returns the total number of requests received.
func (m *MockPokeAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// ConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockPokeAPI) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockPokeAPI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func requestKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func (m *MockPokeAPI) serve(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r)

	m.mu.Lock()
	m.requestCount++
	m.counts[key]++
	m.lastHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" {
		m.conditionalCount++
	}
	hold := m.holds[key]
	override, overridden := m.overrides[key]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-m.closing:
			return
		case <-r.Context().Done():
			return
		}
	}

	if overridden {
		for k, v := range override.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(override.StatusCode)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	body, status := m.generate(r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	sum := sha1.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(body)
}

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (m *MockPokeAPI) entryURL(name string) string {
	return fmt.Sprintf("%s/pokemon/%s/", m.server.URL, name)
}

func (m *MockPokeAPI) generate(r *http.Request) ([]byte, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case path == "/pokemon":
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit < 0 {
			return nil, http.StatusBadRequest
		}
		if limit > len(m.catalog) {
			limit = len(m.catalog)
		}
		results := make([]namedResource, 0, limit)
		for _, name := range m.catalog[:limit] {
			results = append(results, namedResource{Name: name, URL: m.entryURL(name)})
		}
		body, _ := json.Marshal(map[string]any{"count": len(m.catalog), "results": results})
		return body, http.StatusOK

	case path == "/type":
		results := make([]namedResource, 0, len(m.categories))
		for _, name := range m.categories {
			results = append(results, namedResource{Name: name, URL: m.server.URL + "/type/" + name + "/"})
		}
		body, _ := json.Marshal(map[string]any{"count": len(results), "results": results})
		return body, http.StatusOK

	case strings.HasPrefix(path, "/type/"):
		name := strings.TrimPrefix(path, "/type/")
		members, ok := m.members[name]
		if !ok {
			return nil, http.StatusNotFound
		}
		type slot struct {
			Slot    int           `json:"slot"`
			Pokemon namedResource `json:"pokemon"`
		}
		pokemon := make([]slot, 0, len(members))
		for _, member := range members {
			pokemon = append(pokemon, slot{Slot: 1, Pokemon: namedResource{Name: member, URL: m.entryURL(member)}})
		}
		body, _ := json.Marshal(map[string]any{"name": name, "pokemon": pokemon})
		return body, http.StatusOK
	}

	return nil, http.StatusNotFound
}
