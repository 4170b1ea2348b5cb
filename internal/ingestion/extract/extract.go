package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Terminal input errors. Retrying never helps with these.
var (
	ErrUnreadable        = errors.New("source document is unreadable")
	ErrPasswordProtected = errors.New("source document is password protected")
	ErrUnsupportedType   = errors.New("unsupported document type")
)

const formFeed = "\f"

// Kind reports how a filename will be extracted: "pdf", "text" or "".
func Kind(filename string) string {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".pdf":
		return "pdf"
	case ".txt", ".md", ".markdown", ".text":
		return "text"
	default:
		return ""
	}
}

// Pages splits a stored document into per-page text.
func Pages(filename string, data []byte) ([]string, error) {
	switch Kind(filename) {
	case "pdf":
		return PDFPages(data)
	case "text":
		return TextPages(data)
	default:
		if bytes.HasPrefix(data, []byte("%PDF-")) {
			return PDFPages(data)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
}

// TextPages treats form feeds as page breaks.
func TextPages(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		if bytes.IndexByte(data, 0) >= 0 {
			return nil, fmt.Errorf("%w: binary content in text document", ErrUnreadable)
		}
		data = []byte(strings.ToValidUTF8(string(data), "�"))
	}
	return strings.Split(string(data), formFeed), nil
}

func PDFPages(data []byte) ([]string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing PDF header", ErrUnreadable)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, classifyPDFError(err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, classifyPDFError(err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, classifyPDFError(err)
	}

	pages := make([]string, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		r, err := pdfcpu.ExtractPageContent(ctx, i)
		if err != nil {
			return nil, classifyPDFError(fmt.Errorf("page %d: %w", i, err))
		}
		if r == nil {
			pages = append(pages, "")
			continue
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, i, err)
		}
		pages = append(pages, ContentStreamText(raw))
	}
	return pages, nil
}

func classifyPDFError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return fmt.Errorf("%w: %v", ErrPasswordProtected, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreadable, err)
}
