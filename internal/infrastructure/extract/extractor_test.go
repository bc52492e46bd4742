package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/buildcost/docpipe/internal/core/domain"
)

type storageFake struct {
	blobs map[string][]byte
}

func (f *storageFake) SaveTemp(context.Context, io.Reader) (string, int64, error) {
	return "", 0, fmt.Errorf("not implemented")
}

func (f *storageFake) Promote(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *storageFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *storageFake) Delete(context.Context, string) error { return nil }

func TestExtractPlainTextDocument(t *testing.T) {
	e := New(&storageFake{blobs: map[string][]byte{
		"blobs/abc": []byte("INVOICE\n\nAcme Lumber Co invoice for boards"),
	}})

	parsed, err := e.Extract(context.Background(), &domain.Document{
		MimeType:    MimeText,
		StoragePath: "blobs/abc",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(parsed.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %+v", parsed.Elements)
	}
	if parsed.Language != "en" {
		t.Fatalf("expected en, got %q", parsed.Language)
	}
}

func TestExtractUnsupportedMime(t *testing.T) {
	e := New(&storageFake{blobs: map[string][]byte{"blobs/img": {0x89}}})

	_, err := e.Extract(context.Background(), &domain.Document{
		MimeType:    "image/png",
		StoragePath: "blobs/img",
	})
	if !domain.IsKind(err, domain.ErrStageFailed) {
		t.Fatalf("expected stage failure, got %v", err)
	}
}

func TestExtractMissingBlob(t *testing.T) {
	e := New(&storageFake{blobs: map[string][]byte{}})

	_, err := e.Extract(context.Background(), &domain.Document{
		MimeType:    MimeText,
		StoragePath: "blobs/gone",
	})
	if !domain.IsKind(err, domain.ErrStageFailed) {
		t.Fatalf("expected stage failure, got %v", err)
	}
}
