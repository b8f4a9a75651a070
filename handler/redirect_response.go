package handler

import "net/http"

type redirectResponse struct {
	url  string
	code int
}

func (r redirectResponse) Render(w http.ResponseWriter, req *http.Request) error {
	http.Redirect(w, req, r.url, r.code)
	return nil
}

// Redirect answers 303 See Other. Checkout callbacks use it to send the
// buyer back to the dashboard.
func Redirect(url string) Response {
	return redirectResponse{url: url, code: http.StatusSeeOther}
}

// RedirectWithCode answers with a specific 3xx code.
func RedirectWithCode(url string, code int) Response {
	return redirectResponse{url: url, code: code}
}
