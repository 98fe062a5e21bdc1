package awsevent

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"php-lambda-launcher/internal/bridge"

	"github.com/aws/aws-lambda-go/events"
)

func invokePayload(t *testing.T, req invokeRequest) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal invoke request: %v", err)
	}
	raw, err := json.Marshal(map[string]string{"Action": "Invoke", "body": string(inner)})
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	return raw
}

func TestNormalizeInvoke(t *testing.T) {
	raw := invokePayload(t, invokeRequest{
		Method:   "POST",
		Path:     "/submit.php?x=1",
		Host:     "example.com",
		Headers:  map[string]string{"content-type": "text/plain"},
		Body:     base64.StdEncoding.EncodeToString([]byte("hello")),
		Encoding: "base64",
	})

	ev, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if ev.Method != "POST" {
		t.Errorf("Expected method POST, got %s", ev.Method)
	}
	if ev.Host != "example.com" {
		t.Errorf("Expected host example.com, got %s", ev.Host)
	}
	if ev.Path != "/submit.php?x=1" {
		t.Errorf("Expected path /submit.php?x=1, got %s", ev.Path)
	}
	if ev.Headers.Get("Content-Type") != "text/plain" {
		t.Errorf("Expected content-type text/plain, got %s", ev.Headers.Get("Content-Type"))
	}
	if string(ev.Body) != "hello" {
		t.Errorf("Expected body hello, got %q", ev.Body)
	}
}

func TestNormalizeInvokeHostFromHeaders(t *testing.T) {
	raw := invokePayload(t, invokeRequest{
		Method:  "GET",
		Path:    "/",
		Headers: map[string]string{"host": "zeit.co"},
	})

	ev, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.Host != "zeit.co" {
		t.Errorf("Expected host zeit.co, got %s", ev.Host)
	}
	if ev.Body != nil {
		t.Errorf("Expected nil body, got %q", ev.Body)
	}
}

func TestNormalizeProxyRequest(t *testing.T) {
	raw, err := json.Marshal(events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/blog",
		Headers:    map[string]string{"Host": "api.example.com"},
		MultiValueHeaders: map[string][]string{
			"Accept": {"text/html", "application/json"},
		},
		QueryStringParameters:           map[string]string{"page": "2"},
		MultiValueQueryStringParameters: map[string][]string{"tag": {"go", "php"}},
		Body:                            "plain body",
	})
	if err != nil {
		t.Fatalf("Failed to marshal proxy request: %v", err)
	}

	ev, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if ev.Path != "/blog?page=2&tag=go&tag=php" {
		t.Errorf("Unexpected path %s", ev.Path)
	}
	if ev.Host != "api.example.com" {
		t.Errorf("Expected host api.example.com, got %s", ev.Host)
	}
	if got := ev.Headers.Values("Accept"); len(got) != 2 {
		t.Errorf("Expected 2 Accept values, got %v", got)
	}
	if string(ev.Body) != "plain body" {
		t.Errorf("Expected body 'plain body', got %q", ev.Body)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"unknown shape", `{"foo":"bar"}`},
		{"bad invoke body", `{"Action":"Invoke","body":"not json"}`},
		{"bad base64", `{"httpMethod":"GET","path":"/","body":"%%%","isBase64Encoded":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(json.RawMessage(tt.raw))
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestScriptFilename(t *testing.T) {
	tests := []struct {
		urlPath string
		want    string
	}{
		{"/", "/var/task/user/index.php"},
		{"", "/var/task/user/index.php"},
		{"/about", "/var/task/user/index.php"},
		{"/admin/login.php", "/var/task/user/admin/login.php"},
		{"/../../etc/passwd.php", "/var/task/user/etc/passwd.php"},
	}

	for _, tt := range tests {
		t.Run(tt.urlPath, func(t *testing.T) {
			got := ScriptFilename("/var/task/user", "index.php", tt.urlPath)
			if got != tt.want {
				t.Errorf("ScriptFilename(%q) = %s, want %s", tt.urlPath, got, tt.want)
			}
		})
	}
}

func TestToBridgeRequest(t *testing.T) {
	ev := &Event{
		Method:  "GET",
		Host:    "example.com",
		Path:    "/info.php?foo=bar",
		Headers: http.Header{"Host": {"example.com"}},
	}

	req, err := ToBridgeRequest(ev, "/var/task/user", "index.php")
	if err != nil {
		t.Fatalf("ToBridgeRequest failed: %v", err)
	}

	if req.Filename != "/var/task/user/info.php" {
		t.Errorf("Expected filename /var/task/user/info.php, got %s", req.Filename)
	}
	if req.URI != "https://example.com/info.php?foo=bar" {
		t.Errorf("Unexpected URI %s", req.URI)
	}
	if got := bridge.DispatchURL("127.0.0.1:8000", req.Filename, req.URI).RequestURI(); got != "/var/task/user/info.php?foo=bar" {
		t.Errorf("Unexpected dispatch path %s", got)
	}
}

func TestToBridgeRequestRejectsMissingMethod(t *testing.T) {
	_, err := ToBridgeRequest(&Event{Path: "/"}, "/var/task/user", "index.php")
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}
}

func TestToProxyResponse(t *testing.T) {
	resp := ToProxyResponse(&bridge.Response{
		StatusCode: 201,
		Headers: http.Header{
			"Content-Type": {"text/plain"},
			"Set-Cookie":   {"a=1", "b=2"},
		},
		Body: []byte{0xff, 'o', 'k'},
	})

	if resp.StatusCode != 201 {
		t.Errorf("Expected status 201, got %d", resp.StatusCode)
	}
	if !resp.IsBase64Encoded {
		t.Error("Expected base64 encoded body")
	}
	body, err := base64.StdEncoding.DecodeString(resp.Body)
	if err != nil || string(body) != "\xffok" {
		t.Errorf("Unexpected body %q (%v)", body, err)
	}
	if resp.Headers["Content-Type"] != "text/plain" {
		t.Errorf("Expected single-value Content-Type, got %v", resp.Headers)
	}
	if _, ok := resp.Headers["Set-Cookie"]; ok {
		t.Error("Set-Cookie should only be in MultiValueHeaders")
	}
	if len(resp.MultiValueHeaders["Set-Cookie"]) != 2 {
		t.Errorf("Expected 2 cookies, got %v", resp.MultiValueHeaders["Set-Cookie"])
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(http.StatusBadRequest, "bad event")
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if resp.Body != `{"error":"bad event"}` {
		t.Errorf("Unexpected body %s", resp.Body)
	}
}
