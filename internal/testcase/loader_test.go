package testcase

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"gavel/internal/common/storage"
	"gavel/pkg/errors"
)

type fakeStore struct {
	data map[string][]byte
}

func (f *fakeStore) Upload(_ context.Context, ref storage.AttachmentRef, data []byte) error {
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[ref.Key] = data
	return nil
}

func (f *fakeStore) Download(_ context.Context, ref storage.AttachmentRef) ([]byte, error) {
	data, ok := f.data[ref.Key]
	if !ok {
		return nil, errors.New(errors.NotFound).WithMessage("no such object")
	}
	return data, nil
}

func (f *fakeStore) Stat(_ context.Context, ref storage.AttachmentRef) (storage.AttachmentStat, error) {
	data, ok := f.data[ref.Key]
	if !ok {
		return storage.AttachmentStat{}, errors.New(errors.NotFound).WithMessage("no such object")
	}
	return storage.AttachmentStat{SizeBytes: int64(len(data))}, nil
}

func TestParse(t *testing.T) {
	cases, err := Parse([]byte("1 2,3\n5 5,10\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(cases))
	}
	if cases[0].Input != "1 2" || cases[0].Expected != "3" {
		t.Fatalf("unexpected first case: %+v", cases[0])
	}
}

func TestParseQuotedMultilineInput(t *testing.T) {
	cases, err := Parse([]byte("\"3\n1 2 3\",6\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cases[0].Input != "3\n1 2 3" {
		t.Fatalf("multiline input mangled: %q", cases[0].Input)
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("\n\n")} {
		_, err := Parse(data)
		if !errors.Is(err, errors.BusinessRule) {
			t.Fatalf("Parse(%q) err = %v, want BusinessRule", data, err)
		}
	}
}

func TestParseRejectsWrongColumnCount(t *testing.T) {
	_, err := Parse([]byte("1,2\nonly-one-column\n"))
	if !errors.Is(err, errors.BusinessRule) {
		t.Fatalf("err = %v, want BusinessRule", err)
	}
	if !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("error should name the offending row: %v", err)
	}
}

func TestParseZstdCompressed(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := enc.Write([]byte("in,out\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cases, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cases) != 1 || cases[0].Expected != "out" {
		t.Fatalf("unexpected cases: %+v", cases)
	}
}

func TestLoadRejectsNonCSVContentType(t *testing.T) {
	store := &fakeStore{}
	loader := NewLoader(store)

	ref := storage.AttachmentRef{Key: "tc", ContentType: "application/pdf"}
	_, err := loader.Load(context.Background(), ref)
	if !errors.Is(err, errors.BusinessRule) {
		t.Fatalf("err = %v, want BusinessRule", err)
	}
}

func TestLoadFetchesAndParses(t *testing.T) {
	store := &fakeStore{}
	ref := storage.AttachmentRef{Key: "tc", ContentType: "text/csv; charset=utf-8"}
	if err := store.Upload(context.Background(), ref, []byte("a,b\n")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	cases, err := NewLoader(store).Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cases) != 1 || cases[0].Input != "a" {
		t.Fatalf("unexpected cases: %+v", cases)
	}
}
