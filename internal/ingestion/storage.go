package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/ingestion/extract"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/objectstore"
)

// Storage is the document side of the object store: it names, writes and
// reads back uploaded sources as page text.
type Storage interface {
	PathFor(documentID uuid.UUID, filename string) string
	Put(ctx context.Context, storagePath string, data []byte) error
	Open(ctx context.Context, storagePath string) (*PageIterator, error)
}

type storage struct {
	log      *logger.Logger
	store    objectstore.Store
	maxBytes int64
}

func NewStorage(log *logger.Logger, store objectstore.Store, maxBytes int64) Storage {
	return &storage{
		log:      log.With("service", "DocumentStorage"),
		store:    store,
		maxBytes: maxBytes,
	}
}

func (s *storage) PathFor(documentID uuid.UUID, filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "source"
	}
	return path.Join("documents", documentID.String(), base)
}

func (s *storage) Put(ctx context.Context, storagePath string, data []byte) error {
	if err := s.store.Put(ctx, storagePath, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("store %s: %w", storagePath, err)
	}
	return nil
}

// Open reads the object and extracts its pages up front. Extraction errors
// wrap extract.ErrUnreadable or extract.ErrPasswordProtected.
func (s *storage) Open(ctx context.Context, storagePath string) (*PageIterator, error) {
	rc, err := s.store.Get(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", storagePath, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if s.maxBytes > 0 {
		r = io.LimitReader(rc, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", storagePath, err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", extract.ErrUnreadable, storagePath, s.maxBytes)
	}

	pages, err := extract.Pages(storagePath, data)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Document opened", "path", storagePath, "pages", len(pages), "bytes", len(data))
	return &PageIterator{pages: pages}, nil
}

// PageIterator yields normalised page text in page order.
type PageIterator struct {
	pages []string
	next  int
}

func NewPageIterator(pages []string) *PageIterator {
	return &PageIterator{pages: pages}
}

func (it *PageIterator) Total() int { return len(it.pages) }

// Next returns the next page and false once exhausted.
func (it *PageIterator) Next() (string, bool) {
	if it == nil || it.next >= len(it.pages) {
		return "", false
	}
	p := NormalizePage(it.pages[it.next])
	it.next++
	return p, true
}

// NormalizePage repairs invalid UTF-8, collapses runs of horizontal whitespace
// and trims each line while keeping line breaks.
func NormalizePage(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.Join(strings.Fields(ln), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
