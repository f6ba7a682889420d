package domain

import "net/http"

// UpstreamResponse is what came back from the real HTTP server, or a synthesized stand in.
type UpstreamResponse struct {
	StatusCode int
	Reason     string
	Headers    Headers
	Body       []byte
	// Err is set when the response was synthesized from an upstream failure.
	Err error
}

// NewSyntheticResponse builds a response the relay produces itself, without headers.
func NewSyntheticResponse(status int, body string) UpstreamResponse {
	return UpstreamResponse{
		StatusCode: status,
		Reason:     http.StatusText(status),
		Body:       []byte(body),
	}
}

// NewUpstreamErrorResponse turns an upstream failure into a 500 carrying the error text.
func NewUpstreamErrorResponse(err error) UpstreamResponse {
	resp := NewSyntheticResponse(http.StatusInternalServerError, err.Error())
	resp.Err = err
	return resp
}

// Failed reports whether the response stands in for a failed upstream call.
func (r UpstreamResponse) Failed() bool {
	return r.Err != nil
}
