package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidFile = errors.New("invalid file")
	ErrInvalidPath = errors.New("invalid upload path")
)

// File is an uploaded file that has not been persisted yet.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type multipartFile struct {
	fh *multipart.FileHeader
}

func FromMultipart(fh *multipart.FileHeader) File {
	return multipartFile{fh: fh}
}

func (f multipartFile) Name() string                 { return f.fh.Filename }
func (f multipartFile) Size() int64                  { return f.fh.Size }
func (f multipartFile) Open() (io.ReadCloser, error) { return f.fh.Open() }

type bytesFile struct {
	name string
	data []byte
}

// BytesFile wraps in-memory content, e.g. for imports and tests.
func BytesFile(name string, data []byte) File {
	return bytesFile{name: name, data: data}
}

func (f bytesFile) Name() string { return f.name }
func (f bytesFile) Size() int64  { return int64(len(f.data)) }
func (f bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationError is returned by the save operations when a file breaks its
// kind's rule. Message is safe to show to users.
type ValidationError struct {
	File    string
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFile
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Validate checks the file's extension and size against kind's rule. It does
// not read the file.
func Validate(f File, kind Kind) Result {
	rule, ok := rules[kind]
	if !ok {
		return Result{Error: "Unknown upload kind"}
	}
	if !rule.allows(extension(f.Name())) {
		return Result{Error: "Invalid file type. Allowed types: " + strings.Join(rule.Extensions, ", ")}
	}
	if f.Size() > rule.MaxBytes() {
		return Result{Error: fmt.Sprintf("File too large. Maximum size: %dMB", rule.MaxSizeMB)}
	}
	return Result{Valid: true}
}

func validateOrError(f File, kind Kind) error {
	if res := Validate(f, kind); !res.Valid {
		return &ValidationError{File: f.Name(), Kind: kind, Message: res.Error}
	}
	return nil
}
