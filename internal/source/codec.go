package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"

	"danny/nn/internal/neighbors"
)

// Format is a serialization format for artifacts.
type Format string

const (
	JSON    Format = "json"
	Msgpack Format = "msgpack"
)

// ParseFormat accepts json, msgpack or mpk.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "msgpack", "mpk":
		return Msgpack, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", neighbors.ErrInvalidArgument, s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", neighbors.ErrInvalidArgument, path)
	}
	return ParseFormat(ext)
}

// Encode writes v to w.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case JSON:
		return json.NewEncoder(w).Encode(v)
	case Msgpack:
		return msgpack.NewEncoder(w).Encode(v)
	}
	return fmt.Errorf("%w: unknown format %q", neighbors.ErrInvalidArgument, f)
}

// Decode reads one value from r into v.
func Decode(r io.Reader, f Format, v any) error {
	switch f {
	case JSON:
		return json.NewDecoder(r).Decode(v)
	case Msgpack:
		return msgpack.NewDecoder(r).Decode(v)
	}
	return fmt.Errorf("%w: unknown format %q", neighbors.ErrInvalidArgument, f)
}

// WriteFile creates parent directories and encodes v to path in the format
// named by its extension.
func WriteFile(path string, v any) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(file, f, v); err != nil {
		file.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return file.Close()
}

// ReadFile decodes path into v using the format named by its extension.
func ReadFile(path string, v any) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := Decode(file, f, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
