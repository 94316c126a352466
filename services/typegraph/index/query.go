// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"fmt"
	"sort"
)

// Query names a query answered by an Index.
type Query string

// Supported queries. Names are the wire values used by the CLI and HTTP API.
const (
	QueryAllNames                      Query = "all_names"
	QueryStandardClasses               Query = "standard_classes"
	QueryInterfaces                    Query = "interfaces"
	QueryAnnotations                   Query = "annotations"
	QuerySubclasses                    Query = "subclasses"
	QuerySuperclasses                  Query = "superclasses"
	QuerySubinterfaces                 Query = "subinterfaces"
	QuerySuperinterfaces               Query = "superinterfaces"
	QueryClassesImplementing           Query = "classes_implementing"
	QueryInterfacesImplementedBy       Query = "interfaces_implemented_by"
	QueryClassesWithAnnotation         Query = "classes_with_annotation"
	QueryAnnotationsOn                 Query = "annotations_on"
	QueryAnnotationsWithMetaAnnotation Query = "annotations_with_meta_annotation"
	QueryMetaAnnotationsOn             Query = "meta_annotations_on"
)

type queryFunc struct {
	needsName bool
	run       func(x *Index, name string) []string
}

var queries = map[Query]queryFunc{
	QueryAllNames:                      {false, func(x *Index, _ string) []string { return x.AllNames() }},
	QueryStandardClasses:               {false, func(x *Index, _ string) []string { return x.StandardClassNames() }},
	QueryInterfaces:                    {false, func(x *Index, _ string) []string { return x.InterfaceNames() }},
	QueryAnnotations:                   {false, func(x *Index, _ string) []string { return x.AnnotationNames() }},
	QuerySubclasses:                    {true, (*Index).SubclassesOf},
	QuerySuperclasses:                  {true, (*Index).SuperclassesOf},
	QuerySubinterfaces:                 {true, (*Index).SubinterfacesOf},
	QuerySuperinterfaces:               {true, (*Index).SuperinterfacesOf},
	QueryClassesImplementing:           {true, (*Index).ClassesImplementing},
	QueryInterfacesImplementedBy:       {true, (*Index).InterfacesImplementedBy},
	QueryClassesWithAnnotation:         {true, (*Index).ClassesWithAnnotation},
	QueryAnnotationsOn:                 {true, (*Index).AnnotationsOn},
	QueryAnnotationsWithMetaAnnotation: {true, (*Index).AnnotationsWithMetaAnnotation},
	QueryMetaAnnotationsOn:             {true, (*Index).MetaAnnotationsOn},
}

// Queries returns every supported query name, sorted.
func Queries() []Query {
	out := make([]Query, 0, len(queries))
	for q := range queries {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NeedsName reports whether q takes an entity name.
func (q Query) NeedsName() bool {
	return queries[q].needsName
}

// Valid reports whether q is a supported query.
func (q Query) Valid() bool {
	_, ok := queries[q]
	return ok
}

// Run dispatches a query by name.
//
// Errors:
//
//	ErrUnknownQuery - q is not supported
//	ErrMissingArgument - q needs a name and name is empty
func (x *Index) Run(ctx context.Context, q Query, name string) ([]string, error) {
	fn, ok := queries[q]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, q)
	}
	if fn.needsName && name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, q)
	}

	_, span := startQuerySpan(ctx, q, name)
	defer span.End()

	return fn.run(x, name), nil
}
