// Package binder populates request structs for handler.Wrap.
//
// JSON decodes the body strictly, Query reads `query:"name"` tags and Path
// reads `path:"name"` tags through a router-supplied extractor such as
// chi.URLParam. Binders are applied in order and each one only touches the
// fields it owns.
package binder
