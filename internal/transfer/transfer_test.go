package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/openwebindex/platform/pkg/errors"
)

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.tsv")
	if err := os.WriteFile(path, []byte("hello\tworld\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher()
	reader, err := f.Fetch(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\tworld\n" {
		t.Fatalf("read %q", data)
	}
}

func TestFetchLocalGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.tsv.gz")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(file)
	if _, err := gz.Write([]byte("compressed row\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher()
	reader, err := f.Fetch(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "compressed row\n" {
		t.Fatalf("read %q", data)
	}
}

func TestFetchMissingFile(t *testing.T) {
	f := NewFetcher()
	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "absent.tsv"))
	if !errors.Is(err, apperrors.ErrDownload) {
		t.Fatalf("missing file error: %v", err)
	}
}

func TestFetchCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gz")
	if err := os.WriteFile(path, []byte("this is not gzip"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), path)
	if !errors.Is(err, apperrors.ErrDecompress) {
		t.Fatalf("corrupt gzip error: %v", err)
	}
}

func TestFetchHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote batch\n"))
	}))
	defer server.Close()

	f := NewFetcher()
	reader, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "remote batch\n" {
		t.Fatalf("read %q", data)
	}
}

func TestFetchHTTPNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewFetcher()
	f.retry.MaxAttempts = 1
	f.retry.InitialDelay = 0

	if _, err := f.Fetch(context.Background(), server.URL); !errors.Is(err, apperrors.ErrDownload) {
		t.Fatalf("404 error: %v", err)
	}
}
