// Package fake serves an in-memory repository over the GitHub/Gitee contents API.
package fake

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// Request records one write received by the server.
type Request struct {
	Method        string
	Path          string
	HasSHA        bool
	SHA           string
	ContentLength int
}

type file struct {
	content []byte
	sha     string
}

type Server struct {
	*httptest.Server

	Owner string
	Repo  string
	Token string
	Gitee bool

	// Permissions is reported in the repository metadata.
	Permissions map[string]bool

	mu       sync.Mutex
	files    map[string]*file
	requests []Request
	reads    int
	seq      int

	createFailures int
	rejectEmptySHA bool
	writeFailures  map[string]int
	getFailures    map[string]int
	racing         map[string][]byte
}

func NewGitHub() *Server {
	return newServer(false)
}

func NewGitee() *Server {
	return newServer(true)
}

func newServer(gitee bool) *Server {
	s := &Server{
		Owner:         "owner",
		Repo:          "repo",
		Token:         "secret-token",
		Gitee:         gitee,
		Permissions:   map[string]bool{"pull": true, "push": true},
		files:         make(map[string]*file),
		writeFailures: make(map[string]int),
		getFailures:   make(map[string]int),
		racing:        make(map[string][]byte),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))

	return s
}

// FailCreates makes the next n writes without a sha field fail.
func (s *Server) FailCreates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createFailures = n
}

// RejectExplicitEmptySHA makes writes carrying "sha": "" fail.
func (s *Server) RejectExplicitEmptySHA() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectEmptySHA = true
}

// FailWrites answers every write to path with status.
func (s *Server) FailWrites(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeFailures[path] = status
}

// FailGets answers every read of path with status.
func (s *Server) FailGets(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getFailures[path] = status
}

// ChangeBeforeNextWrite stores content at path right before the next write to
// it is handled, as if another device won the race.
func (s *Server) ChangeBeforeNextWrite(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.racing[path] = content
}

// Put stores content directly, as another device would, and returns its sha.
func (s *Server) Put(path string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(path, content)
}

func (s *Server) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

func (s *Server) Content(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), f.content...), true
}

func (s *Server) SHA(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[path]; ok {
		return f.sha
	}

	return ""
}

// Requests returns the writes received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls is the number of requests of any kind received so far.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads + len(s.requests)
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.reads = 0
}

func (s *Server) store(path string, content []byte) string {
	s.seq++
	sum := sha1.Sum(fmt.Appendf(nil, "blob %d\x00%s", s.seq, content))
	sha := hex.EncodeToString(sum[:])
	s.files[path] = &file{content: append([]byte(nil), content...), sha: sha}

	return sha
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Gitee {
		return r.URL.Query().Get("access_token") == s.Token
	}

	return r.Header.Get("Authorization") == "Bearer "+s.Token
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}

	repoPrefix := fmt.Sprintf("/repos/%s/%s", s.Owner, s.Repo)
	switch {
	case r.URL.Path == repoPrefix:
		s.handleRepo(w)
	case strings.HasPrefix(r.URL.Path, repoPrefix+"/contents"):
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, repoPrefix+"/contents"), "/")
		s.handleContents(w, r, path)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
}

func (s *Server) handleRepo(w http.ResponseWriter) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()

	info := map[string]any{"full_name": s.Owner + "/" + s.Repo}
	if s.Gitee {
		info["permission"] = s.Permissions
		info["default_branch"] = "master"
	} else {
		info["permissions"] = s.Permissions
		info["default_branch"] = "main"
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		s.reads++
		s.handleGet(w, path)
	case http.MethodPut, http.MethodPost:
		s.handleWrite(w, r, path)
	case http.MethodDelete:
		s.handleDelete(w, r, path)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func (s *Server) handleGet(w http.ResponseWriter, path string) {
	if status, ok := s.getFailures[path]; ok {
		writeJSON(w, status, map[string]string{"message": "injected failure"})
		return
	}

	if f, ok := s.files[path]; ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"name":     path[strings.LastIndex(path, "/")+1:],
			"path":     path,
			"sha":      f.sha,
			"size":     len(f.content),
			"encoding": "base64",
			"content":  wrap(base64.StdEncoding.EncodeToString(f.content), 60),
		})
		return
	}

	entries := s.list(path)
	if len(entries) > 0 || (path == "" && !s.Gitee) {
		writeJSON(w, http.StatusOK, entries)
		return
	}

	if s.Gitee {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func (s *Server) list(dir string) []map[string]any {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]bool)
	var out []map[string]any
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}

		rest := strings.TrimPrefix(p, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			if !seen[name] {
				seen[name] = true
				out = append(out, map[string]any{"type": "dir", "name": name, "path": prefix + name, "sha": ""})
			}
			continue
		}

		f := s.files[p]
		out = append(out, map[string]any{
			"type": "file",
			"name": rest,
			"path": p,
			"sha":  f.sha,
			"size": len(f.content),
		})
	}

	if out == nil {
		out = []map[string]any{}
	}

	return out
}

type writeBody struct {
	Message string  `json:"message"`
	Content string  `json:"content"`
	Branch  string  `json:"branch"`
	SHA     *string `json:"sha"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request, path string) {
	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}

	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "content is not valid Base64"})
		return
	}

	req := Request{Method: r.Method, Path: path, HasSHA: body.SHA != nil, ContentLength: len(content)}
	if body.SHA != nil {
		req.SHA = *body.SHA
	}
	s.requests = append(s.requests, req)

	if status, ok := s.writeFailures[path]; ok {
		writeJSON(w, status, map[string]string{"message": "injected failure"})
		return
	}

	if racing, ok := s.racing[path]; ok {
		delete(s.racing, path)
		s.store(path, racing)
	}

	existing, exists := s.files[path]

	switch {
	case body.SHA == nil:
		if exists {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
			return
		}
		if s.Gitee && r.Method != http.MethodPost {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		if s.createFailures > 0 {
			s.createFailures--
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request."})
			return
		}
		s.created(w, path, content)

	case *body.SHA == "":
		if s.rejectEmptySHA {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "sha is empty"})
			return
		}
		if exists {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
			return
		}
		s.created(w, path, content)

	default:
		if !exists || existing.sha != *body.SHA {
			writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match %s", path, *body.SHA)})
			return
		}
		sha := s.store(path, content)
		writeJSON(w, http.StatusOK, writeResult(path, sha))
	}
}

func (s *Server) created(w http.ResponseWriter, path string, content []byte) {
	sha := s.store(path, content)
	writeJSON(w, http.StatusCreated, writeResult(path, sha))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, path string) {
	var body struct {
		SHA string `json:"sha"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.requests = append(s.requests, Request{Method: r.Method, Path: path, HasSHA: body.SHA != "", SHA: body.SHA})

	if status, ok := s.writeFailures[path]; ok {
		writeJSON(w, status, map[string]string{"message": "injected failure"})
		return
	}

	f, ok := s.files[path]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if f.sha != body.SHA {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
		return
	}

	delete(s.files, path)
	writeJSON(w, http.StatusOK, map[string]any{"content": nil})
}

func writeResult(path, sha string) map[string]any {
	return map[string]any{
		"content": map[string]any{"path": path, "sha": sha},
		"commit":  map[string]any{"message": "ok"},
	}
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)

	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
