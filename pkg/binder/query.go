package binder

import "net/http"

// Query binds URL query parameters to fields tagged `query:"name"`.
// Untagged fields are left alone.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		if len(values) == 0 {
			return ErrBinderNotApplicable
		}
		return bindToStruct(v, "query", values, ErrFailedToParseQuery)
	}
}

// Path binds route parameters to fields tagged `path:"name"` using
// extractor, typically chi.URLParam.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindTagged(v, "path", func(name string) []string {
			if val := extractor(r, name); val != "" {
				return []string{val}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}
