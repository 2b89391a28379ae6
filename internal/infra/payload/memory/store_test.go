package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"worldcore/internal/infra/payload"
)

func TestPutGetHead(t *testing.T) {
	s := New()
	ctx := context.Background()
	info, err := s.Put(ctx, "tex/hull", strings.NewReader("pixels"), payload.PutOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"origin": "test"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "tex/hull" || info.Size != 6 || info.ContentType != "image/png" {
		t.Fatalf("Put info %+v", info)
	}

	got, rc, err := s.Get(ctx, "tex/hull")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, []byte("pixels")) {
		t.Fatalf("body %q", data)
	}
	if got.Metadata["origin"] != "test" {
		t.Fatalf("metadata %v", got.Metadata)
	}

	head, err := s.Head(ctx, "tex/hull")
	if err != nil || head.Size != 6 {
		t.Fatalf("Head=%+v, %v", head, err)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("a"), payload.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("b"), payload.PutOptions{}); err == nil {
		t.Fatalf("second Put accepted")
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, payload.ErrNotFound) {
		t.Fatalf("Get ghost: %v", err)
	}
	if _, err := s.Head(context.Background(), "ghost"); !errors.Is(err, payload.ErrNotFound) {
		t.Fatalf("Head ghost: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("a"), payload.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := s.Delete(ctx, "k"); err != nil || !ok {
		t.Fatalf("Delete=%v,%v", ok, err)
	}
	if ok, err := s.Delete(ctx, "k"); err != nil || ok {
		t.Fatalf("second Delete=%v,%v", ok, err)
	}
}

func TestListByPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, key := range []string{"tex/b", "tex/a", "mesh/x"} {
		if _, err := s.Put(ctx, key, strings.NewReader("d"), payload.PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "tex/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "tex/a" || infos[1].Key != "tex/b" {
		t.Fatalf("List=%v", infos)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("List all=%v, %v", all, err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("abc"), payload.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, rc, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	data[0] = 'z'
	_, rc2, _ := s.Get(ctx, "k")
	again, _ := io.ReadAll(rc2)
	rc2.Close()
	if string(again) != "abc" {
		t.Fatalf("stored bytes mutated through reader: %q", again)
	}
}
