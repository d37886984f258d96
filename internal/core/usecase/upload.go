package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type DocumentUploadUseCase struct {
	extractor ports.TextExtractor
	maxRunes  int
}

func NewDocumentUploadUseCase(extractor ports.TextExtractor, maxRunes int) *DocumentUploadUseCase {
	if maxRunes <= 0 {
		maxRunes = maxDocumentRunes
	}
	return &DocumentUploadUseCase{extractor: extractor, maxRunes: maxRunes}
}

func (uc *DocumentUploadUseCase) Extract(
	ctx context.Context,
	filename string,
	body io.Reader,
) (*domain.AnalysisDocument, error) {
	name := sanitizeFilename(filename)
	text, err := uc.extractor.Extract(ctx, name, body)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewValidationError("files", fmt.Sprintf("文件 %s 没有可分析的文本", name))
	}
	return &domain.AnalysisDocument{
		ID:      uuid.NewString(),
		Name:    name,
		Content: truncateRunes(text, uc.maxRunes),
	}, nil
}

// sanitizeFilename keeps the base name and drops path and control characters.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == ':':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(base))
	if base == "" || base == "." {
		return "document.txt"
	}
	return base
}
