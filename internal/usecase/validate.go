package usecase

import (
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxUploadBytes is the largest PDF the document service accepts (32 MiB).
	MaxUploadBytes = 32 << 20

	pdfMIME        = "application/pdf"
	defaultURLName = "PDF from URL"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type urlInput struct {
	URL string `validate:"required,http_url"`
}

// validatePDFURL accepts absolute http(s) URLs whose path ends in ".pdf".
func validatePDFURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if err := validate.Struct(urlInput{URL: raw}); err != nil {
		return nil, newError(ErrorInvalidInput, "invalid_url", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(ErrorInvalidInput, "invalid_url", err)
	}
	if !strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return nil, newError(ErrorInvalidInput, "not_a_pdf_url", nil)
	}
	return u, nil
}

// nameFromURL is the last path segment of u, or a generic label.
func nameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return defaultURLName
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// validatePDFUpload checks size and content type before anything is sent.
func validatePDFUpload(name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return newError(ErrorInvalidInput, "empty_file_name", nil)
	}
	if len(data) == 0 {
		return newError(ErrorInvalidInput, "empty_file", nil)
	}
	if len(data) > MaxUploadBytes {
		return newError(ErrorInvalidInput, "file_too_large", nil)
	}
	if !mimetype.Detect(data).Is(pdfMIME) {
		return newError(ErrorInvalidInput, "invalid_file_type", nil)
	}
	return nil
}
