package transport

import (
	"bytes"
	"net/http"
)

// capture buffers a handler's response so it can be enveloped afterwards.
// Headers go straight to the underlying writer's header map.
type capture struct {
	w      http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func newCapture(w http.ResponseWriter) *capture {
	return &capture{w: w}
}

func (c *capture) Header() http.Header { return c.w.Header() }

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.buf.Write(b)
}

func (c *capture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
