package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/sessions"
)

// fakeBackend plays both the metadata service and the object-storage
// backend for engine tests, recording every call.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu sync.Mutex

	// Metadata side.
	folderIDs       map[string]string
	createFolder    []string
	bulkNodes       [][]api.FolderTreeNode
	presignCalls    int
	presignFiles    [][]api.PresignFile
	skipNames       []string
	notifyStatuses  []int
	notifyCalls     int
	notified        [][]string
	deletedDocs     []string
	initCalls       int
	chunkSize       int64
	signPartsCalls  [][]int
	completedParts  [][]api.CompletedPart
	abortCalls      int
	bulkFolderFails bool

	// Storage side.
	puts      map[string]int
	putBodies map[string]int64
	failPuts  map[string]int  // path suffix -> number of 500s before success
	stallPuts map[string]bool // path suffix -> block until the request is canceled
	goneParts map[string]bool
	nextDoc   int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{
		t:         t,
		folderIDs: map[string]string{},
		chunkSize: 50,
		puts:      map[string]int{},
		putBodies: map[string]int64{},
		failPuts:  map[string]int{},
		stallPuts: map[string]bool{},
		goneParts: map[string]bool{},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) client() *api.Client {
	return api.New(b.srv.URL, "test-token", 5*time.Second, logging.Discard())
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !strings.HasPrefix(r.URL.Path, "/storage/") {
		require.Equal(b.t, "Bearer test-token", r.Header.Get("Authorization"))
	}

	switch {
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/storage/"):
		b.handlePut(w, r)
	case r.URL.Path == "/folders" && r.Method == http.MethodPost:
		b.handleCreateFolder(w, r)
	case r.URL.Path == "/folders/bulk":
		b.handleBulkFolders(w, r)
	case r.URL.Path == "/presigned-urls/bulk":
		b.handlePresign(w, r)
	case r.URL.Path == "/presigned-urls/complete":
		b.handleNotify(w, r)
	case strings.HasPrefix(r.URL.Path, "/documents/") && r.Method == http.MethodDelete:
		b.deletedDocs = append(b.deletedDocs, strings.TrimPrefix(r.URL.Path, "/documents/"))
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/multipart-upload/init":
		b.handleInit(w, r)
	case r.URL.Path == "/multipart-upload/sign-parts":
		b.handleSignParts(w, r)
	case r.URL.Path == "/multipart-upload/complete":
		b.handleMultipartComplete(w, r)
	case r.URL.Path == "/multipart-upload/abort":
		b.abortCalls++
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func (b *fakeBackend) handlePut(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/storage/")
	n, _ := io.Copy(io.Discard, r.Body)

	b.puts[path]++
	b.putBodies[path] = n
	if b.stallPuts[path] {
		// Hold the part open until the client gives up. handle()
		// serializes on b.mu, so release it while parked.
		b.mu.Unlock()
		<-r.Context().Done()
		b.mu.Lock()
		http.Error(w, "client went away", http.StatusInternalServerError)
		return
	}
	if b.failPuts[path] > 0 {
		b.failPuts[path]--
		http.Error(w, "upstream hiccup", http.StatusInternalServerError)
		return
	}
	w.Header().Set("ETag", fmt.Sprintf("%q", "tag-"+path))
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		ParentFolderID string `json:"parentFolderId"`
		ReuseExisting  bool   `json:"reuseExisting"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	b.createFolder = append(b.createFolder, req.Name)

	id, ok := b.folderIDs[req.Name]
	if !ok {
		id = "fld-" + req.Name
		b.folderIDs[req.Name] = id
	}
	writeJSON(w, map[string]any{"folder": map[string]any{"id": id, "name": req.Name}})
}

func (b *fakeBackend) handleBulkFolders(w http.ResponseWriter, r *http.Request) {
	if b.bulkFolderFails {
		http.Error(w, "bulk create failed", http.StatusInternalServerError)
		return
	}
	var req struct {
		FolderTree     []api.FolderTreeNode `json:"folderTree"`
		ParentFolderID string               `json:"parentFolderId"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	b.bulkNodes = append(b.bulkNodes, req.FolderTree)

	folderMap := map[string]string{}
	for _, n := range req.FolderTree {
		folderMap[n.Path] = "fld-" + n.Path
	}
	writeJSON(w, map[string]any{"count": len(folderMap), "folderMap": folderMap})
}

func (b *fakeBackend) handlePresign(w http.ResponseWriter, r *http.Request) {
	b.presignCalls++
	var req struct {
		Files []api.PresignFile `json:"files"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	b.presignFiles = append(b.presignFiles, req.Files)

	skip := map[string]bool{}
	for _, s := range b.skipNames {
		skip[s] = true
	}

	var urls, docs, skipped []string
	for _, f := range req.Files {
		if skip[f.FileName] {
			skipped = append(skipped, f.FileName)
			continue
		}
		b.nextDoc++
		doc := fmt.Sprintf("doc-%d", b.nextDoc)
		docs = append(docs, doc)
		urls = append(urls, b.srv.URL+"/storage/"+doc)
	}
	writeJSON(w, map[string]any{"presignedUrls": urls, "documentIds": docs, "skippedFiles": skipped})
}

func (b *fakeBackend) handleNotify(w http.ResponseWriter, r *http.Request) {
	b.notifyCalls++
	if len(b.notifyStatuses) > 0 {
		status := b.notifyStatuses[0]
		b.notifyStatuses = b.notifyStatuses[1:]
		if status != http.StatusOK {
			http.Error(w, "notify failed", status)
			return
		}
	}
	var req struct {
		DocumentIDs []string `json:"documentIds"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	b.notified = append(b.notified, req.DocumentIDs)
	writeJSON(w, map[string]any{"queued": len(req.DocumentIDs)})
}

func (b *fakeBackend) handleInit(w http.ResponseWriter, r *http.Request) {
	b.initCalls++
	var req struct {
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))

	total := int((req.FileSize + b.chunkSize - 1) / b.chunkSize)
	urls := make([]string, total)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/storage/mp/%d", b.srv.URL, i+1)
	}
	writeJSON(w, map[string]any{
		"documentId":    "doc-mp",
		"uploadId":      "up-1",
		"storageKey":    "key-1",
		"presignedUrls": urls,
		"totalParts":    total,
		"chunkSize":     b.chunkSize,
	})
}

func (b *fakeBackend) handleSignParts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartNumbers []int `json:"partNumbers"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	b.signPartsCalls = append(b.signPartsCalls, req.PartNumbers)

	urls := map[int]string{}
	for _, n := range req.PartNumbers {
		urls[n] = fmt.Sprintf("%s/storage/mp/%d", b.srv.URL, n)
	}
	writeJSON(w, map[string]any{"presignedUrls": urls})
}

func (b *fakeBackend) handleMultipartComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parts []api.CompletedPart `json:"parts"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	b.completedParts = append(b.completedParts, req.Parts)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Helpers shared by engine tests.

func testStore(t *testing.T) sessions.Repository {
	t.Helper()
	db, err := sessions.InitDatabase(context.Background(), t.TempDir()+"/sessions.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sessions.NewSQLiteRepository(db)
}

func memHandle(name string, size int64, path ...string) FileHandle {
	return FileHandle{
		Name:        name,
		Size:        size,
		ContentType: "application/pdf",
		Path:        path,
		Content:     strings.NewReader(strings.Repeat("x", int(size))),
	}
}

func collectEvents(ch <-chan ProgressEvent, done chan<- []ProgressEvent) {
	var events []ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	done <- events
}
