// Package upload validates user images and keeps them in temporary storage
// until the engine has read them.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/llm"

	"github.com/gabriel-vasile/mimetype"
)

const DefaultMaxBytes = 10 << 20

var allowedTypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/gif",
	"image/heic",
}

// Stored describes an accepted upload on disk.
type Stored struct {
	FilePath         string `json:"file_path"`
	OriginalMimeType string `json:"original_mime_type"`
	OriginalName     string `json:"original_name"`
}

type Handler struct {
	dir      string
	maxBytes int64
}

func NewHandler(dir string, maxBytes int64) *Handler {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Handler{dir: dir, maxBytes: maxBytes}
}

// Save checks size and sniffed content type, then writes the file to
// temporary storage. The declared Content-Type of the part is ignored.
func (h *Handler) Save(fh *multipart.FileHeader) (*Stored, error) {
	if fh == nil {
		return nil, apperror.NewValidation("image", "no file uploaded")
	}
	if fh.Size > h.maxBytes {
		return nil, apperror.NewValidation("image", fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, apperror.NewValidation("image", fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
	}
	if len(data) == 0 {
		return nil, apperror.NewValidation("image", "file is empty")
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return nil, apperror.NewValidation("image", fmt.Sprintf("unsupported file type %s", mtype.String()))
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare upload dir: %w", err)
	}
	dst, err := os.CreateTemp(h.dir, "upload-*"+mtype.Extension())
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := dst.Write(data); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &Stored{
		FilePath:         dst.Name(),
		OriginalMimeType: mtype.String(),
		OriginalName:     filepath.Base(fh.Filename),
	}, nil
}

// Load reads a stored upload into the form model adapters accept.
func (h *Handler) Load(s *Stored) (*llm.Image, error) {
	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read stored upload: %w", err)
	}
	return &llm.Image{Name: s.OriginalName, MimeType: s.OriginalMimeType, Data: data}, nil
}

// Cleanup removes the temporary file. Missing files are not an error.
func (h *Handler) Cleanup(s *Stored) error {
	if s == nil {
		return nil
	}
	if err := os.Remove(s.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Accept is Save, Load and Cleanup in one step for callers that only need
// the bytes in memory.
func (h *Handler) Accept(fh *multipart.FileHeader) (*llm.Image, error) {
	stored, err := h.Save(fh)
	if err != nil {
		return nil, err
	}
	defer h.Cleanup(stored)
	return h.Load(stored)
}
