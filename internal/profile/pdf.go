package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// MaxPDFBytes bounds uploaded PDF exports before text extraction.
const MaxPDFBytes = 10 << 20

var (
	ErrPDFTooLarge = errors.New("pdf exceeds 10 MiB")
	ErrInvalidPDF  = errors.New("pdf could not be read")
)

// ExtractPDFText returns the plain text of a PDF export of generator output.
// Malformed documents can panic inside the pdf reader; those surface as
// ErrInvalidPDF.
func ExtractPDFText(data []byte) (text string, err error) {
	if len(data) > MaxPDFBytes {
		return "", ErrPDFTooLarge
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}
