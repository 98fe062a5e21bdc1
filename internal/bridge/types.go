package bridge

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Request is a normalized invocation addressed to a PHP entry point.
// URI is the URL the client originally requested; only its query string is
// forwarded to the backend.
type Request struct {
	Filename string      `json:"filename" validate:"required,startswith=/"`
	URI      string      `json:"uri" validate:"required"`
	Method   string      `json:"method" validate:"required"`
	Headers  http.Header `json:"headers"`
	Body     []byte      `json:"body,omitempty"`
}

// Validate checks the request against its struct tags.
func (r *Request) Validate() error {
	return validate.Struct(r)
}

// Response is what the backend answered. Body is never nil.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}
