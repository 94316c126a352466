// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package facts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxDocumentBytes bounds the size of a fact document read by Decode.
const MaxDocumentBytes = 256 << 20

// Format identifies a fact document encoding.
type Format string

const (
	// FormatYAML is a YAML FactSet document.
	FormatYAML Format = "yaml"

	// FormatJSON is a JSON FactSet document.
	FormatJSON Format = "json"
)

// ParseFormat parses a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Decode reads and validates a FactSet document.
//
// Description:
//
//	Unknown fields are rejected. A missing version is set to
//	CurrentVersion. The facts are validated but not normalized.
//
// Errors:
//
//	ErrUnknownFormat - format is not YAML or JSON
//	ErrInvalidFact - the document failed validation
func Decode(r io.Reader, format Format) (FactSet, error) {
	var set FactSet
	limited := io.LimitReader(r, MaxDocumentBytes)

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(limited)
		dec.KnownFields(true)
		if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
			return FactSet{}, fmt.Errorf("decoding yaml facts: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(limited)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&set); err != nil {
			return FactSet{}, fmt.Errorf("decoding json facts: %w", err)
		}
	default:
		return FactSet{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if set.Version == 0 {
		set.Version = CurrentVersion
	}
	if err := set.Validate(); err != nil {
		return FactSet{}, err
	}
	return set, nil
}

// Encode writes set in the given format.
func Encode(w io.Writer, set FactSet, format Format) error {
	if set.Version == 0 {
		set.Version = CurrentVersion
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(set); err != nil {
			return fmt.Errorf("encoding yaml facts: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(set); err != nil {
			return fmt.Errorf("encoding json facts: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LoadFile reads a fact document, inferring the format from its extension.
func LoadFile(path string) (FactSet, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return FactSet{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return FactSet{}, fmt.Errorf("opening fact file: %w", err)
	}
	defer f.Close()

	set, err := Decode(f, format)
	if err != nil {
		return FactSet{}, fmt.Errorf("%s: %w", path, err)
	}
	if set.Source == "" {
		set.Source = path
	}
	return set, nil
}
