// Package validator builds declarative validation from small Rule values.
//
// Each rule pairs a Check function with the ValidationError it reports.
// Apply evaluates rules and returns ValidationErrors when any fail:
//
//	err := validator.Apply(
//		validator.Required("name", p.Name),
//		validator.NonNegativeDecimal("price", p.Price),
//		validator.ValidCurrency("currency", p.Currency),
//		validator.ValidURLWithScheme("endpoint", endpoint, []string{"https"}),
//	)
//
// ValidationErrors implements error, and the handler package renders it as
// a 422 response with per-field details.
package validator
