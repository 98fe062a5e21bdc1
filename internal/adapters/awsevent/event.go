// Package awsevent converts Lambda invocation payloads to bridge requests
// and bridge responses back to proxy responses.
package awsevent

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"php-lambda-launcher/internal/bridge"

	"github.com/aws/aws-lambda-go/events"
)

// ErrInvalidEvent is returned for payloads that are neither a Now-style
// Invoke envelope nor an API Gateway proxy event.
var ErrInvalidEvent = errors.New("invalid invocation event")

// Event is an HTTP request extracted from an invocation payload.
// Path includes the query string.
type Event struct {
	Method  string
	Host    string
	Path    string
	Headers http.Header
	Body    []byte
}

// envelope is the Now builder wrapper: the HTTP request is JSON encoded in Body.
type envelope struct {
	Action     string `json:"Action"`
	Body       string `json:"body"`
	HTTPMethod string `json:"httpMethod"`
}

type invokeRequest struct {
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Host     string            `json:"host"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body"`
	Encoding string            `json:"encoding"`
}

// Normalize decodes raw into an Event.
func Normalize(raw json.RawMessage) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch {
	case env.Action == "Invoke":
		return fromInvoke(env.Body)
	case env.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return FromProxyRequest(req)
	default:
		return nil, fmt.Errorf("%w: unrecognized payload", ErrInvalidEvent)
	}
}

func fromInvoke(payload string) (*Event, error) {
	var req invokeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("%w: decoding Invoke body: %v", ErrInvalidEvent, err)
	}

	body, err := decodeBody(req.Body, req.Encoding == "base64")
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for k, v := range req.Headers {
		headers.Set(k, v)
	}

	host := req.Host
	if host == "" {
		host = headers.Get("Host")
	}

	return &Event{
		Method:  req.Method,
		Host:    host,
		Path:    req.Path,
		Headers: headers,
		Body:    body,
	}, nil
}

// FromProxyRequest converts an API Gateway REST proxy event.
func FromProxyRequest(req events.APIGatewayProxyRequest) (*Event, error) {
	body, err := decodeBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if headers.Get(k) == "" {
			headers.Set(k, v)
		}
	}

	query := url.Values{}
	for k, vs := range req.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range req.QueryStringParameters {
		if !query.Has(k) {
			query.Set(k, v)
		}
	}

	p := req.Path
	if len(query) > 0 {
		p += "?" + query.Encode()
	}

	return &Event{
		Method:  req.HTTPMethod,
		Host:    headers.Get("Host"),
		Path:    p,
		Headers: headers,
		Body:    body,
	}, nil
}

func decodeBody(body string, isBase64 bool) ([]byte, error) {
	if body == "" {
		return nil, nil
	}
	if !isBase64 {
		return []byte(body), nil
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64 body: %v", ErrInvalidEvent, err)
	}
	return b, nil
}

// ToBridgeRequest resolves the PHP script for ev inside userDir. A path
// naming a .php file runs that file; anything else goes to the entrypoint
// front controller.
func ToBridgeRequest(ev *Event, userDir, entrypoint string) (*bridge.Request, error) {
	u, err := url.Parse(ev.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing path: %v", ErrInvalidEvent, err)
	}

	req := &bridge.Request{
		Filename: ScriptFilename(userDir, entrypoint, u.Path),
		URI:      requestURI(ev),
		Method:   ev.Method,
		Headers:  ev.Headers,
		Body:     ev.Body,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return req, nil
}

// ScriptFilename maps a URL path to a script under userDir. The path is
// cleaned first so it cannot climb out of userDir.
func ScriptFilename(userDir, entrypoint, urlPath string) string {
	clean := path.Clean("/" + urlPath)
	if strings.HasSuffix(clean, ".php") {
		return filepath.Join(userDir, filepath.FromSlash(clean))
	}
	return filepath.Join(userDir, entrypoint)
}

func requestURI(ev *Event) string {
	if ev.Host == "" {
		return ev.Path
	}
	return "https://" + ev.Host + ev.Path
}

// ToProxyResponse encodes resp for API Gateway. Bodies are always base64 so
// binary output survives; headers with several values only appear in
// MultiValueHeaders.
func ToProxyResponse(resp *bridge.Response) events.APIGatewayProxyResponse {
	single := make(map[string]string, len(resp.Headers))
	multi := make(map[string][]string, len(resp.Headers))
	for k, vs := range resp.Headers {
		multi[k] = vs
		if len(vs) == 1 {
			single[k] = vs[0]
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode:        resp.StatusCode,
		Headers:           single,
		MultiValueHeaders: multi,
		Body:              base64.StdEncoding.EncodeToString(resp.Body),
		IsBase64Encoded:   true,
	}
}

// ErrorResponse is a JSON error body for requests rejected before they
// reach the backend.
func ErrorResponse(status int, message string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
