package pipeline

import (
	"bytes"
	"fmt"
	"mime"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/converse/model"
)

// ExtractText converts file bytes with a declared content type into a plain
// text string. Supported types are application/pdf and text/plain; anything
// else fails with ErrExtractionFailed. Media type parameters (charset) are
// ignored.
func ExtractText(data []byte, contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: invalid content type %q", model.ErrExtractionFailed, contentType)
	}

	switch mediaType {
	case "application/pdf":
		return extractPDF(data)
	case "text/plain":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text content is not valid UTF-8", model.ErrExtractionFailed)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: unsupported content type %q", model.ErrExtractionFailed, contentType)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrExtractionFailed, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrExtractionFailed, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrExtractionFailed, err)
	}

	return buf.String(), nil
}
