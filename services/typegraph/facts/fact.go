// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package facts defines the type-relationship facts consumed by the index
// builder, and the helpers that decode, normalize and watch them.
//
// A Fact describes one named entity: its kind, its declared superclasses, the
// interfaces it implements (superinterfaces for an interface) and the
// annotations placed on it (meta-annotations for an annotation). Facts are
// produced by an external scanner; this package never inspects code.
package facts

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/typegraph/services/typegraph/graph"
)

// CurrentVersion is the FactSet document version written by this package.
const CurrentVersion = 1

// Sentinel errors for fact handling.
var (
	// ErrKindConflict is returned when facts sharing a name declare
	// different kinds.
	ErrKindConflict = errors.New("conflicting kinds for entity")

	// ErrInvalidFact is returned when a fact fails validation.
	ErrInvalidFact = errors.New("invalid fact")

	// ErrUnknownFormat is returned for an unsupported document format.
	ErrUnknownFormat = errors.New("unknown fact document format")
)

// factValidate is the validator instance for fact documents.
var factValidate *validator.Validate

func init() {
	factValidate = validator.New()
	_ = factValidate.RegisterValidation("typekind", validateKind)
}

// validateKind accepts every node kind plus the unspecified zero value.
func validateKind(fl validator.FieldLevel) bool {
	k := graph.Kind(fl.Field().Int())
	return k == graph.KindUnspecified || k.Valid()
}

// Fact is one entity as reported by the scanner.
//
// # Fields
//
//   - Name: Required. Unique entity name, e.g. "com.example.Dog".
//   - Kind: Optional. standard, interface or annotation. Empty means
//     standard once normalized.
//   - Superclasses: Declared superclass names. More than one is accepted.
//   - Interfaces: Implemented interfaces, or superinterfaces when Kind is
//     interface.
//   - Annotations: Annotations carried by the entity, or meta-annotations
//     when Kind is annotation.
type Fact struct {
	Name         string     `json:"name" yaml:"name" validate:"required"`
	Kind         graph.Kind `json:"kind,omitempty" yaml:"kind,omitempty" validate:"typekind"`
	Superclasses []string   `json:"superclasses,omitempty" yaml:"superclasses,omitempty" validate:"dive,required"`
	Interfaces   []string   `json:"interfaces,omitempty" yaml:"interfaces,omitempty" validate:"dive,required"`
	Annotations  []string   `json:"annotations,omitempty" yaml:"annotations,omitempty" validate:"dive,required"`
}

// Validate checks the fact's fields.
func (f Fact) Validate() error {
	if err := factValidate.Struct(f); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidFact, f.Name, err)
	}
	return nil
}

// FactSet is the on-disk and on-wire document holding a complete fact set.
type FactSet struct {
	// Version is the document version. Zero is treated as CurrentVersion.
	Version int `json:"version,omitempty" yaml:"version,omitempty" validate:"gte=0,lte=1"`

	// Source optionally names where the facts came from.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Facts are the entities. An empty set is valid.
	Facts []Fact `json:"facts" yaml:"facts" validate:"dive"`
}

// Validate checks the document and every fact in it.
func (s FactSet) Validate() error {
	if err := factValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFact, err)
	}
	return nil
}
