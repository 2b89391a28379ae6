package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"worldcore/internal/infra/payload"
)

// fakeS3 is a minimal path-style S3 service covering the calls the store
// makes: HeadBucket, HeadObject, GetObject, PutObject, DeleteObject, and
// ListObjectsV2. Request signatures are ignored.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string]fakeObject)}
}

func (f *fakeS3) seed(key, contentType string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: append([]byte(nil), data...), contentType: contentType}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+f.bucket), "/")
	if key == "" {
		f.serveBucket(w, r)
		return
	}
	f.serveObject(w, r, key)
}

func (f *fakeS3) serveBucket(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		f.serveList(w, r.URL.Query().Get("prefix"))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeS3) serveList(w http.ResponseWriter, prefix string) {
	type contents struct {
		Key          string    `xml:"Key"`
		Size         int       `xml:"Size"`
		ETag         string    `xml:"ETag"`
		LastModified time.Time `xml:"LastModified"`
	}
	type result struct {
		XMLName     xml.Name   `xml:"ListBucketResult"`
		IsTruncated bool       `xml:"IsTruncated"`
		Contents    []contents `xml:"Contents"`
	}
	out := result{}
	f.mu.Lock()
	for key, obj := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out.Contents = append(out.Contents, contents{
			Key:          key,
			Size:         len(obj.data),
			ETag:         fmt.Sprintf("%q", etagFor(obj.data)),
			LastModified: time.Now().UTC(),
		})
	}
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(out)
}

func (f *fakeS3) serveObject(w http.ResponseWriter, r *http.Request, key string) {
	f.mu.Lock()
	obj, exists := f.objects[key]
	f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.writeObjectHeaders(w, obj)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if !exists {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>no such key</Message></Error>`)
			return
		}
		f.writeObjectHeaders(w, obj)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.data)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.mu.Lock()
		f.objects[key] = fakeObject{data: data, contentType: r.Header.Get("Content-Type")}
		f.mu.Unlock()
		w.Header().Set("ETag", fmt.Sprintf("%q", etagFor(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		f.mu.Lock()
		delete(f.objects, key)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) writeObjectHeaders(w http.ResponseWriter, obj fakeObject) {
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(obj.data)))
	w.Header().Set("ETag", fmt.Sprintf("%q", etagFor(obj.data)))
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
}

func etagFor(data []byte) string {
	return fmt.Sprintf("len-%d", len(data))
}

func openTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := newFakeS3("test-bucket")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := Open(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		Endpoint:        srv.URL,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, fake
}

func TestOpenRequiresBucket(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("Open without bucket succeeded")
	}
}

func TestGetSeededObject(t *testing.T) {
	store, fake := openTestStore(t)
	fake.seed("tex/hull", "image/png", []byte("pixels"))

	info, rc, err := store.Get(context.Background(), "tex/hull")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || !bytes.Equal(data, []byte("pixels")) {
		t.Fatalf("body %q, %v", data, err)
	}
	if info.Size != 6 || info.ContentType != "image/png" {
		t.Fatalf("info %+v", info)
	}
	if strings.Contains(info.ETag, `"`) {
		t.Fatalf("etag not cleaned: %q", info.ETag)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := openTestStore(t)
	if _, _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, payload.ErrNotFound) {
		t.Fatalf("Get ghost: %v", err)
	}
	if _, err := store.Head(context.Background(), "ghost"); !errors.Is(err, payload.ErrNotFound) {
		t.Fatalf("Head ghost: %v", err)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	info, err := store.Put(ctx, "k", strings.NewReader("abc"), payload.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "k" || info.Size <= 0 {
		t.Fatalf("Put info %+v", info)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("other"), payload.PutOptions{}); err == nil {
		t.Fatalf("second Put accepted")
	}
	if _, err := store.Put(ctx, "", strings.NewReader("x"), payload.PutOptions{}); err == nil {
		t.Fatalf("empty key accepted")
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()
	fake.seed("k", "", []byte("abc"))
	if ok, err := store.Delete(ctx, "k"); err != nil || !ok {
		t.Fatalf("Delete=%v,%v", ok, err)
	}
	if ok, err := store.Delete(ctx, "k"); err != nil || ok {
		t.Fatalf("second Delete=%v,%v", ok, err)
	}
}

func TestListByPrefix(t *testing.T) {
	store, fake := openTestStore(t)
	fake.seed("tex/a", "", []byte("1"))
	fake.seed("tex/b", "", []byte("22"))
	fake.seed("mesh/x", "", []byte("333"))

	infos, err := store.List(context.Background(), "tex/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List=%+v", infos)
	}
	for _, info := range infos {
		if !strings.HasPrefix(info.Key, "tex/") {
			t.Fatalf("listing leaked key %q", info.Key)
		}
	}
}

func TestCleanETag(t *testing.T) {
	cases := []struct {
		in   *string
		want string
	}{
		{nil, ""},
		{strPtr(`"abc"`), "abc"},
		{strPtr("abc"), "abc"},
	}
	for _, tc := range cases {
		if got := cleanETag(tc.in); got != tc.want {
			t.Errorf("cleanETag(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(errors.New("operation error S3: HeadObject, https response error StatusCode: 404")) {
		t.Errorf("status text 404 not recognized")
	}
	if isNotFound(errors.New("connection refused")) {
		t.Errorf("unrelated error recognized as not-found")
	}
}

func strPtr(s string) *string { return &s }
