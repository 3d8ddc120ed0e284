package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/erazemk/pujcovna/internal/db"
)

func TestUploadAndOpen(t *testing.T) {
	s := NewDBStorage(db.NewTestDB(t), "https://desk.example.com/")
	ctx := context.Background()
	data := []byte("\xff\xd8\xff\xe0 jpeg-ish bytes")

	ref, err := s.UploadFile(ctx, BucketConditionPhotos, "loan-1/a.jpg", data)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if ref != "https://desk.example.com/files/condition-photos/loan-1/a.jpg" {
		t.Errorf("unexpected ref %q", ref)
	}

	f, err := s.Open(ctx, BucketConditionPhotos, "loan-1/a.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f == nil || !bytes.Equal(f.Data, data) {
		t.Fatalf("stored blob mismatch: %+v", f)
	}
	if f.MIME != "image/jpeg" {
		t.Errorf("MIME = %q", f.MIME)
	}

	missing, err := s.Open(ctx, BucketConditionPhotos, "nope.jpg")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing blob, got %v, %v", missing, err)
	}
}

func TestUploadRejectsBadPaths(t *testing.T) {
	s := NewDBStorage(db.NewTestDB(t), "")
	ctx := context.Background()

	for _, p := range []string{"", "/abs.jpg", "../escape.jpg", "a//b.jpg", `a\b.jpg`} {
		if _, err := s.UploadFile(ctx, BucketPersonPhotos, p, []byte("x")); err == nil {
			t.Errorf("UploadFile(%q) should fail", p)
		}
	}
	if _, err := s.UploadFile(ctx, "bad/bucket", "a.jpg", []byte("x")); err == nil {
		t.Error("bucket with slash should fail")
	}
}

func TestRelativeRef(t *testing.T) {
	s := NewDBStorage(db.NewTestDB(t), "")
	if got := s.PublicRef(BucketPersonPhotos, "p.jpg"); got != "/files/person-photos/p.jpg" {
		t.Errorf("PublicRef = %q", got)
	}
}
