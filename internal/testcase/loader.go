// Package testcase loads and validates problem test-case files.
//
// A test-case file is a CSV with exactly two columns per row: input and
// expected output. Files may optionally be zstd-compressed; the loader
// detects compression from the frame magic rather than the filename.
package testcase

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"gavel/internal/common/storage"
	"gavel/pkg/errors"
)

// TestCase is one input/expected-output pair.
type TestCase struct {
	Input    string
	Expected string
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// acceptedContentTypes are the content types a test-case attachment may
// carry. An empty content type is accepted for backward compatibility
// with attachments uploaded before the type was recorded.
var acceptedContentTypes = map[string]bool{
	"":                         true,
	"text/csv":                 true,
	"application/csv":          true,
	"application/zstd":         true,
	"application/octet-stream": true,
}

// Loader fetches test-case files from the attachment store.
type Loader struct {
	store storage.AttachmentStore
}

func NewLoader(store storage.AttachmentStore) *Loader {
	return &Loader{store: store}
}

// Load downloads and parses the test-case file behind ref.
func (l *Loader) Load(ctx context.Context, ref storage.AttachmentRef) ([]TestCase, error) {
	if !acceptedContentTypes[normalizeContentType(ref.ContentType)] {
		return nil, errors.BusinessError("test-case file must be a CSV attachment").
			WithDetail("content_type", ref.ContentType)
	}
	data, err := l.store.Download(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a (possibly zstd-compressed) CSV test-case payload.
func Parse(data []byte) ([]TestCase, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		decoded, err := decompress(data)
		if err != nil {
			return nil, errors.BusinessError("test-case file is not valid zstd").
				WithDetail("cause", err.Error())
		}
		data = decoded
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.BusinessError("test-case file is empty")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var cases []TestCase
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, errors.BusinessError("test-case file is not valid CSV").
				WithDetail("row", row).
				WithDetail("cause", err.Error())
		}
		if len(record) != 2 {
			return nil, errors.Newf(errors.BusinessRule,
				"test-case row %d must have 2 columns, got %d", row, len(record))
		}
		cases = append(cases, TestCase{Input: record[0], Expected: record[1]})
	}
	if len(cases) == 0 {
		return nil, errors.BusinessError("test-case file is empty")
	}
	return cases, nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
