package sync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
	"github.com/tonimelisma/sharepoint-sync/pkg/quickxorhash"
)

const (
	testSite  = "contoso.sharepoint.com,1111,2222"
	testDrive = "b!drive"
	testRoot  = "/data"
)

var testDriveRef = graph.DriveRef{SiteID: testSite, DriveID: testDrive}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// testWriter adapts testing.T to io.Writer for slog output.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// fastPolicy retries three times with millisecond delays.
func fastPolicy() graph.RetryPolicy {
	return graph.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// writeFiles populates an in-memory filesystem under testRoot.
func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testRoot, 0o755))

	for rel, content := range files {
		p := path.Join(testRoot, rel)
		require.NoError(t, fs.MkdirAll(path.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}

	return fs
}

// fakeItem is a file or folder held by fakeGraph.
type fakeItem struct {
	id       string
	name     string
	parentID string
	folder   bool
	content  []byte
}

type fakeSession struct {
	parentID string
	name     string
	total    int64
	buf      []byte
}

// fakeGraph is an in-memory SharePoint drive served over httptest. Names
// are matched case-insensitively like SharePoint does.
type fakeGraph struct {
	srv *httptest.Server

	mu       stdsync.Mutex
	items    map[string]*fakeItem
	sessions map[string]*fakeSession
	nextID   int
	requests []string

	// failNext maps a file or folder name to a queue of statuses returned
	// (in order) before the request is served normally.
	failNext map[string][]int
	// failChunks is a queue of statuses returned to upload-session PUTs.
	failChunks []int
	// retryAfter is sent as Retry-After with injected chunk failures.
	retryAfter string
	// createConflict makes folder creation of these names return 409 after
	// silently creating the folder, as if another writer won the race.
	createConflict map[string]bool
	// driveStatus, when non-zero, is returned by the drive preflight.
	driveStatus int
	// omitHash leaves quickXorHash out of upload responses.
	omitHash bool
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()

	fg := &fakeGraph{
		items:          map[string]*fakeItem{"root": {id: "root", folder: true}},
		sessions:       make(map[string]*fakeSession),
		failNext:       make(map[string][]int),
		createConflict: make(map[string]bool),
	}

	fg.srv = httptest.NewServer(http.HandlerFunc(fg.serve))
	t.Cleanup(fg.srv.Close)

	return fg
}

// client returns a Graph client for the fake with fast retries.
func (fg *fakeGraph) client(t *testing.T) *graph.Client {
	t.Helper()

	c := graph.NewClient(fg.srv.URL, fg.srv.Client(), staticToken("tok"), testLogger(t), "test-agent")
	c.SetRetryPolicy(fastPolicy())

	return c
}

func (fg *fakeGraph) requestLog() []string {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	return append([]string(nil), fg.requests...)
}

func (fg *fakeGraph) countRequests(prefix string) int {
	n := 0

	for _, r := range fg.requestLog() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}

	return n
}

// lookup walks a slash path from the root.
func (fg *fakeGraph) lookup(p string) *fakeItem {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	cur := fg.items["root"]

	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg == "" {
			continue
		}

		cur = fg.childLocked(cur.id, seg)
		if cur == nil {
			return nil
		}
	}

	return cur
}

func (fg *fakeGraph) fileCount() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	n := 0

	for _, it := range fg.items {
		if !it.folder {
			n++
		}
	}

	return n
}

func (fg *fakeGraph) childLocked(parentID, name string) *fakeItem {
	for _, it := range fg.items {
		if it.parentID == parentID && strings.EqualFold(it.name, name) && it.id != "root" {
			return it
		}
	}

	return nil
}

func (fg *fakeGraph) putLocked(parentID, name string, folder bool, content []byte) *fakeItem {
	if existing := fg.childLocked(parentID, name); existing != nil {
		existing.content = content
		return existing
	}

	fg.nextID++
	it := &fakeItem{id: "item-" + strconv.Itoa(fg.nextID), name: name, parentID: parentID, folder: folder, content: content}
	fg.items[it.id] = it

	return it
}

// injected pops the next injected failure status for name, or 0.
func (fg *fakeGraph) injectedLocked(name string) int {
	q := fg.failNext[name]
	if len(q) == 0 {
		return 0
	}

	fg.failNext[name] = q[1:]

	return q[0]
}

func (fg *fakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	p := r.URL.Path
	fg.requests = append(fg.requests, r.Method+" "+p)

	if strings.HasPrefix(p, "/upload/") {
		fg.serveSession(w, r, strings.TrimPrefix(p, "/upload/"))
		return
	}

	prefix := "/sites/" + testSite + "/drives/" + testDrive
	if !strings.HasPrefix(p, prefix) {
		http.Error(w, "unknown drive", http.StatusNotFound)
		return
	}

	rest := strings.TrimPrefix(p, prefix)
	if rest == "" {
		if fg.driveStatus != 0 {
			http.Error(w, "preflight", fg.driveStatus)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"id": testDrive, "name": "Documents", "driveType": "documentLibrary"})

		return
	}

	rest = strings.TrimPrefix(rest, "/items/")

	if parent, tail, ok := strings.Cut(rest, ":/"); ok {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(tail, ":"):
			fg.serveGetChild(w, parent, strings.TrimSuffix(tail, ":"))
		case r.Method == http.MethodPut && strings.HasSuffix(tail, ":/content"):
			fg.serveSimpleUpload(w, r, parent, strings.TrimSuffix(tail, ":/content"))
		case r.Method == http.MethodPost && strings.HasSuffix(tail, ":/createUploadSession"):
			fg.serveCreateSession(w, r, parent, strings.TrimSuffix(tail, ":/createUploadSession"))
		default:
			http.Error(w, "unsupported", http.StatusBadRequest)
		}

		return
	}

	if parent, ok := strings.CutSuffix(rest, "/children"); ok && r.Method == http.MethodPost {
		fg.serveCreateFolder(w, r, parent)
		return
	}

	http.Error(w, "unsupported", http.StatusBadRequest)
}

func (fg *fakeGraph) serveGetChild(w http.ResponseWriter, parentID, name string) {
	if status := fg.injectedLocked(name); status != 0 {
		http.Error(w, "injected", status)
		return
	}

	it := fg.childLocked(parentID, name)
	if it == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "itemNotFound"}})
		return
	}

	writeJSON(w, http.StatusOK, fg.itemJSON(it))
}

func (fg *fakeGraph) serveCreateFolder(w http.ResponseWriter, r *http.Request, parentID string) {
	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if status := fg.injectedLocked(req.Name); status != 0 {
		http.Error(w, "injected", status)
		return
	}

	if fg.createConflict[req.Name] {
		fg.putLocked(parentID, req.Name, true, nil)
		writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]string{"code": "nameAlreadyExists"}})

		return
	}

	if fg.childLocked(parentID, req.Name) != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]string{"code": "nameAlreadyExists"}})
		return
	}

	writeJSON(w, http.StatusCreated, fg.itemJSON(fg.putLocked(parentID, req.Name, true, nil)))
}

func (fg *fakeGraph) serveSimpleUpload(w http.ResponseWriter, r *http.Request, parentID, name string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if status := fg.injectedLocked(name); status != 0 {
		http.Error(w, "injected", status)
		return
	}

	writeJSON(w, http.StatusCreated, fg.itemJSON(fg.putLocked(parentID, name, false, body)))
}

func (fg *fakeGraph) serveCreateSession(w http.ResponseWriter, r *http.Request, parentID, name string) {
	if status := fg.injectedLocked(name); status != 0 {
		http.Error(w, "injected", status)
		return
	}

	fg.nextID++
	sid := "s" + strconv.Itoa(fg.nextID)
	fg.sessions[sid] = &fakeSession{parentID: parentID, name: name}

	writeJSON(w, http.StatusOK, map[string]any{
		"uploadUrl":          fg.srv.URL + "/upload/" + sid,
		"expirationDateTime": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
}

func (fg *fakeGraph) serveSession(w http.ResponseWriter, r *http.Request, sid string) {
	s, ok := fg.sessions[sid]
	if !ok {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}

	if r.Method == http.MethodDelete {
		delete(fg.sessions, sid)
		w.WriteHeader(http.StatusNoContent)

		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(fg.failChunks) > 0 {
		status := fg.failChunks[0]
		fg.failChunks = fg.failChunks[1:]

		if fg.retryAfter != "" {
			w.Header().Set("Retry-After", fg.retryAfter)
		}

		http.Error(w, "injected", status)

		return
	}

	var start, end, total int64
	if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}

	if start != int64(len(s.buf)) || end-start+1 != int64(len(body)) {
		http.Error(w, "range mismatch", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	s.total = total
	s.buf = append(s.buf, body...)

	if int64(len(s.buf)) < total {
		writeJSON(w, http.StatusAccepted, map[string]any{"nextExpectedRanges": []string{strconv.Itoa(len(s.buf)) + "-"}})
		return
	}

	delete(fg.sessions, sid)
	writeJSON(w, http.StatusCreated, fg.itemJSON(fg.putLocked(s.parentID, s.name, false, s.buf)))
}

func (fg *fakeGraph) itemJSON(it *fakeItem) map[string]any {
	out := map[string]any{
		"id":              it.id,
		"name":            it.name,
		"size":            len(it.content),
		"parentReference": map[string]string{"id": it.parentID},
	}

	if it.folder {
		out["folder"] = map[string]int{"childCount": 0}
		return out
	}

	hashes := map[string]string{}
	if !fg.omitHash {
		h := quickxorhash.New()
		h.Write(it.content)
		hashes["quickXorHash"] = base64.StdEncoding.EncodeToString(h.Sum(nil))
	}

	out["file"] = map[string]any{"hashes": hashes}

	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
