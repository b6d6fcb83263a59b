// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
)

// Call is a request recorded by [CatalogStub].
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Auth   string
	Type   string
}

// DecodeBody unmarshals the recorded request body into v.
func (c Call) DecodeBody(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(c.Body, v); err != nil {
		t.Fatalf("failed to decode %s %s body: %v", c.Method, c.Path, err)
	}
}

// CatalogStub is an [httptest.Server] that imitates the catalog API endpoints used by the playlist workflow.
//
// Every endpoint has a default handler with plausible data; tests override individual routes with [CatalogStub.Handle].
type CatalogStub struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    []Call
	handlers map[string]http.HandlerFunc
}

// NewCatalogStub starts a stub catalog server that is closed when the test ends.
func NewCatalogStub(t *testing.T) *CatalogStub {
	t.Helper()

	c := &CatalogStub{handlers: map[string]http.HandlerFunc{}}
	c.Handle(http.MethodGet, "/me", JSONHandler(http.StatusOK, map[string]any{"id": "u1", "display_name": "Test User"}))
	c.Handle(http.MethodGet, "/me/top/tracks", JSONHandler(http.StatusOK, map[string]any{"items": Tracks("top", 5)}))
	c.Handle(http.MethodGet, "/search", JSONHandler(http.StatusOK, map[string]any{
		"artists": map[string]any{"items": Artists("artist", 3)},
	}))
	c.Handle(http.MethodGet, "/recommendations", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil {
			n = 20
		}
		WriteJSON(w, http.StatusOK, map[string]any{"tracks": Tracks("rec", n)})
	})
	c.Handle(http.MethodPost, "/users/u1/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		WriteJSON(w, http.StatusCreated, Playlist("pl1", body.Name))
	})
	c.Handle(http.MethodPost, "/playlists/pl1/tracks", JSONHandler(http.StatusCreated, map[string]any{"snapshot_id": "snap1"}))

	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Server.Close)
	return c
}

// URL returns the stub's base URL.
func (c *CatalogStub) URL() string {
	return c.Server.URL
}

// Handle replaces the handler for method and path.
func (c *CatalogStub) Handle(method, path string, h http.HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method+" "+path] = h
}

// Fail makes method and path answer with a Spotify-style error body.
func (c *CatalogStub) Fail(method, path string, status int, message string) {
	c.Handle(method, path, ErrorHandler(status, message))
}

// Calls returns every recorded request in arrival order.
func (c *CatalogStub) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsTo returns the recorded requests for method and path.
func (c *CatalogStub) CallsTo(method, path string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Method == method && call.Path == path {
			out = append(out, call)
		}
	}
	return out
}

func (c *CatalogStub) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	c.mu.Lock()
	c.calls = append(c.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
		Auth:   r.Header.Get("Authorization"),
		Type:   r.Header.Get("Content-Type"),
	})
	h, ok := c.handlers[r.Method+" "+r.URL.Path]
	c.mu.Unlock()

	if !ok {
		ErrorHandler(http.StatusNotFound, "Service not found")(w, r)
		return
	}
	h(w, r)
}

// JSONHandler answers every request with status and body encoded as JSON.
func JSONHandler(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, status, body)
	}
}

// ErrorHandler answers with a Spotify-style {"error": {...}} body.
func ErrorHandler(status int, message string) http.HandlerFunc {
	return JSONHandler(status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Tracks builds n catalog track objects with IDs prefix-1..prefix-n.
func Tracks(prefix string, n int) []map[string]any {
	tracks := make([]map[string]any, n)
	for i := range tracks {
		id := fmt.Sprintf("%s-%d", prefix, i+1)
		tracks[i] = map[string]any{
			"id":   id,
			"name": "Track " + id,
			"uri":  "spotify:track:" + id,
			"artists": []map[string]any{
				{"id": "ar-" + id, "name": "Artist " + id},
			},
			"album": map[string]any{
				"id":     "al-" + id,
				"name":   "Album " + id,
				"images": []map[string]any{{"url": "https://i.scdn.co/image/" + id, "height": 640, "width": 640}},
			},
		}
	}
	return tracks
}

// Artists builds n catalog artist objects with IDs prefix-1..prefix-n.
func Artists(prefix string, n int) []map[string]any {
	artists := make([]map[string]any, n)
	for i := range artists {
		id := fmt.Sprintf("%s-%d", prefix, i+1)
		artists[i] = map[string]any{"id": id, "name": "Artist " + id, "uri": "spotify:artist:" + id}
	}
	return artists
}

// Playlist builds a created playlist object.
func Playlist(id, name string) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          name,
		"public":        true,
		"uri":           "spotify:playlist:" + id,
		"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/" + id},
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
