package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

const defaultMaxBytes = 20 << 20

var plainTextExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".json":     true,
	".log":      true,
}

// Extractor turns uploaded txt, md, csv, json, pdf and xlsx files into plain text.
type Extractor struct {
	maxBytes int64
}

var _ ports.TextExtractor = (*Extractor)(nil)

func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, filename string, body io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" && ext != ".xlsx" && !plainTextExtensions[ext] {
		return "", domain.NewValidationError("files", fmt.Sprintf("不支持的文件类型: %s", filename))
	}

	raw, err := io.ReadAll(io.LimitReader(body, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", filename, err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.NewValidationError("files", fmt.Sprintf("文件过大: %s", filename))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch ext {
	case ".pdf":
		return extractPDF(filename, raw)
	case ".xlsx":
		return extractXLSX(filename, raw)
	default:
		return extractPlainText(filename, raw)
	}
}

func extractPlainText(filename string, raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		return "", domain.NewValidationError("files", fmt.Sprintf("文件不是 UTF-8 文本: %s", filename))
	}
	return strings.TrimSpace(string(raw)), nil
}

func extractPDF(filename string, raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.NewValidationError("files", fmt.Sprintf("无法解析 PDF 文件: %s", filename))
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plain text %s: %w", filename, err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", filename, err)
	}
	return strings.TrimSpace(string(text)), nil
}

func extractXLSX(filename string, raw []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", domain.NewValidationError("files", fmt.Sprintf("无法解析 Excel 文件: %s", filename))
	}
	defer func() {
		_ = book.Close()
	}()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s of %s: %w", sheet, filename, err)
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
