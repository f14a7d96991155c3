package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrNoDocumentText is returned when no extracted text is available for a document
var ErrNoDocumentText = errors.New("no extracted text available")

// SidecarExtractor reads text that an external converter (pdftotext, OCR)
// has already written next to the document as "<name>.txt" or "<name>.pdf.txt".
type SidecarExtractor struct{}

// ExtractText implements ports.DocumentExtractor
func (SidecarExtractor) ExtractText(ctx context.Context, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	candidates := []string{
		path + ".txt",
		strings.TrimSuffix(path, filepath.Ext(path)) + ".txt",
	}
	for _, candidate := range candidates {
		text, err := os.ReadFile(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read extracted text %s: %w", candidate, err)
		}
		return string(text), nil
	}

	// Some "documents" are already text
	if utf8.Valid(data) && !strings.ContainsRune(string(data), 0) {
		return string(data), nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrNoDocumentText)
}
