package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"php-lambda-launcher/internal/adapters/awsevent"
	"php-lambda-launcher/internal/backend"
	"php-lambda-launcher/internal/bridge"
)

// Querier sends one request to the PHP backend
type Querier interface {
	Query(ctx context.Context, req *bridge.Request) (*bridge.Response, error)
}

// BackendStatus reports on the supervised PHP process
type BackendStatus interface {
	Current() *backend.Process
	Spawns() int
}

// PHPHandler bridges every dev server request to the PHP built-in server
type PHPHandler struct {
	querier    Querier
	status     BackendStatus
	userDir    string
	entrypoint string
}

// NewPHPHandler creates a new PHP handler
func NewPHPHandler(querier Querier, status BackendStatus, userDir, entrypoint string) *PHPHandler {
	return &PHPHandler{
		querier:    querier,
		status:     status,
		userDir:    userDir,
		entrypoint: entrypoint,
	}
}

// Serve relays the request and writes the backend response verbatim.
// Startup failures are attached to the context for ErrorHandler.
func (h *PHPHandler) Serve(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	req := &bridge.Request{
		Filename: awsevent.ScriptFilename(h.userDir, h.entrypoint, c.Request.URL.Path),
		URI:      requestURL(c.Request),
		Method:   c.Request.Method,
		Headers:  c.Request.Header.Clone(),
		Body:     body,
	}
	if req.Headers.Get("Host") == "" {
		req.Headers.Set("Host", c.Request.Host)
	}

	resp, err := h.querier.Query(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	for key, values := range resp.Headers {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := c.Writer.Write(resp.Body); err != nil {
		logrus.WithError(err).Warn("Failed to write bridged response")
	}
}

// Health reports whether the backend is up. An idle backend is healthy since
// it starts on the next request.
func (h *PHPHandler) Health(c *gin.Context) {
	state := gin.H{
		"status":  "healthy",
		"backend": "idle",
		"spawns":  h.status.Spawns(),
	}
	if proc := h.status.Current(); proc != nil {
		state["backend"] = "running"
		state["pid"] = proc.Pid()
		state["started_at"] = proc.StartedAt().UTC()
	}
	c.JSON(http.StatusOK, state)
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
