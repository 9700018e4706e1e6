// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// FileServer is an httptest server that serves fixed bodies by exact path and
// counts the requests it receives per path.
type FileServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

// NewFileServer starts a FileServer that is closed automatically when the
// test ends. Unknown paths answer 404.
func NewFileServer(t testing.TB, files map[string][]byte) *FileServer {
	t.Helper()

	fs := &FileServer{
		files: make(map[string][]byte, len(files)),
		hits:  make(map[string]int),
	}
	for p, b := range files {
		fs.files[p] = b
	}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.hits[r.URL.Path]++
		body, ok := fs.files[r.URL.Path]
		fs.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body) // Client disconnects are expected in cancellation tests.
	}))
	t.Cleanup(fs.Close)

	return fs
}

// Set replaces (or adds) the body served at path.
func (fs *FileServer) Set(path string, body []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[path] = body
}

// Hits returns how many requests were made for path.
func (fs *FileServer) Hits(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

// Endpoint returns the absolute URL for path on this server.
func (fs *FileServer) Endpoint(path string) string {
	return fs.Server.URL + path
}
