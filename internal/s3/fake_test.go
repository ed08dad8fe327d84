package s3

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pkrsplitter/internal/config"
)

// fakeS3 serves the subset of the S3 API the store uses, path style, for
// one bucket. Listings are cut into pages of pageSize keys.
type fakeS3 struct {
	bucket   string
	pageSize int

	mu      sync.Mutex
	objects map[string][]byte
	maxKeys []string
	puts    int
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	Name                  string        `xml:"Name"`
	Prefix                string        `xml:"Prefix"`
	KeyCount              int           `xml:"KeyCount"`
	MaxKeys               int           `xml:"MaxKeys"`
	IsTruncated           bool          `xml:"IsTruncated"`
	ContinuationToken     string        `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key  string `xml:"Key"`
	Size int    `xml:"Size"`
}

func newFakeS3(t *testing.T, bucket string, pageSize int) (*fakeS3, *Store) {
	t.Helper()
	f := &fakeS3{bucket: bucket, pageSize: pageSize, objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	// Empty keys make the client send unsigned, unchunked requests.
	store, err := New(config.S3Config{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Region:   "us-east-1",
		UseSSL:   false,
	}, bucket)
	require.NoError(t, err)
	return f, store
}

func (f *fakeS3) put(key string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
}

func (f *fakeS3) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return string(b), ok
}

// counts returns the list requests seen, with their max-keys, and the puts.
func (f *fakeS3) counts() (lists []string, puts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.maxKeys...), f.puts
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch {
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		f.list(w, r)
	case r.Method == http.MethodGet && key != "":
		content, ok := f.get(key)
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, content)
	case r.Method == http.MethodPut && key != "":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.mu.Lock()
		f.objects[key] = body
		f.puts++
		f.mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	pageSize := f.pageSize
	if mk, err := strconv.Atoi(q.Get("max-keys")); err == nil && mk > 0 && mk < pageSize {
		pageSize = mk
	}

	f.mu.Lock()
	f.maxKeys = append(f.maxKeys, q.Get("max-keys"))
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	// The continuation token is the index of the first key of the page.
	start, _ := strconv.Atoi(q.Get("continuation-token"))
	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}
	res := listResult{
		Name:              f.bucket,
		Prefix:            prefix,
		MaxKeys:           pageSize,
		ContinuationToken: q.Get("continuation-token"),
	}
	for _, k := range keys[start:end] {
		res.Contents = append(res.Contents, listContent{Key: k, Size: len(f.objects[k])})
	}
	res.KeyCount = len(res.Contents)
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}

	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, "<Error><Code>"+code+"</Code><Message>"+code+"</Message></Error>")
}
