package gcp

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGCS serves the subset of the Cloud Storage API the bucket store uses:
// JSON listings and multipart uploads, and XML media reads. Listings are cut
// into pages of pageSize names unless the client asks for fewer.
type fakeGCS struct {
	bucket   string
	pageSize int

	mu         sync.Mutex
	objects    map[string][]byte
	maxResults []string
	uploads    int
}

type objectResource struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	Size   string `json:"size,omitempty"`
}

type listResponse struct {
	Kind          string           `json:"kind"`
	Items         []objectResource `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func newFakeGCS(t *testing.T, bucket string, pageSize int) (*fakeGCS, *BucketStore) {
	t.Helper()
	f := &fakeGCS{bucket: bucket, pageSize: pageSize, objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewBucketStore(client, bucket)
	require.NoError(t, err)
	return f, store
}

func (f *fakeGCS) put(name string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = content
}

func (f *fakeGCS) get(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[name]
	return string(b), ok
}

// counts returns the list requests seen, with their maxResults, and the uploads.
func (f *fakeGCS) counts() (lists []string, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.maxResults...), f.uploads
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/"+f.bucket+"/o":
		f.list(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/upload/storage/v1/b/"+f.bucket+"/o":
		f.upload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/"+f.bucket+"/"):
		content, ok := f.get(strings.TrimPrefix(r.URL.Path, "/"+f.bucket+"/"))
		if !ok {
			http.Error(w, "no such object", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		_, _ = io.WriteString(w, content)
	default:
		http.Error(w, "not implemented", http.StatusNotImplemented)
	}
}

func (f *fakeGCS) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	pageSize := f.pageSize
	if mr, err := strconv.Atoi(q.Get("maxResults")); err == nil && mr > 0 && mr < pageSize {
		pageSize = mr
	}

	f.mu.Lock()
	f.maxResults = append(f.maxResults, q.Get("maxResults"))
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	f.mu.Unlock()
	sort.Strings(names)

	// The page token is the index of the first name of the page.
	start, _ := strconv.Atoi(q.Get("pageToken"))
	end := start + pageSize
	if end > len(names) {
		end = len(names)
	}
	res := listResponse{Kind: "storage#objects", Items: []objectResource{}}
	for _, name := range names[start:end] {
		res.Items = append(res.Items, objectResource{Bucket: f.bucket, Name: name})
	}
	if end < len(names) {
		res.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, res)
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected a multipart upload", http.StatusBadRequest)
		return
	}
	parts := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := parts.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta objectResource
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaPart, err := parts.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.objects[meta.Name] = content
	f.uploads++
	f.mu.Unlock()
	writeJSON(w, objectResource{Bucket: f.bucket, Name: meta.Name, Size: strconv.Itoa(len(content))})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
