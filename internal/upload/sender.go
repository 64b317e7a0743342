package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/valyala/fasthttp"
)

// Transport-level outcomes. They are never valid HTTP statuses, so they share
// the status code channel.
const (
	StatusConnectionRefused = -1
	StatusSendFailed        = -3
	StatusNotConnected      = -4
	StatusTimeout           = -11
)

// Sender delivers one summary and reports an HTTP status or one of the
// negative transport codes.
type Sender interface {
	Send(ctx context.Context, summary Summary) (int, error)
}

// Success reports whether code finalizes a job.
func Success(code int) bool {
	return code == fiber.StatusOK || code == fiber.StatusCreated
}

// StatusText names both HTTP and transport codes for logs.
func StatusText(code int) string {
	switch code {
	case StatusConnectionRefused:
		return "connection refused"
	case StatusSendFailed:
		return "send failed"
	case StatusNotConnected:
		return "not connected"
	case StatusTimeout:
		return "timeout"
	}
	if text := utils.StatusMessage(code); text != "" {
		return text
	}
	return "unknown"
}

type HTTPSender struct {
	url     string
	apiKey  string
	timeout time.Duration
}

func NewHTTPSender(baseURL, apiKey string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		url:     strings.TrimRight(baseURL, "/") + "/sessions",
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (s *HTTPSender) URL() string { return s.url }

func (s *HTTPSender) Send(ctx context.Context, summary Summary) (int, error) {
	if err := ctx.Err(); err != nil {
		return StatusSendFailed, err
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return StatusSendFailed, err
	}

	a := fiber.Post(s.url)
	a.Set("apikey", s.apiKey)
	a.Set(fiber.HeaderAuthorization, "Bearer "+s.apiKey)
	a.Set("Prefer", "return=minimal")
	a.ContentType(fiber.MIMEApplicationJSON)
	a.Body(body)
	if s.timeout > 0 {
		a.Timeout(s.timeout)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return StatusSendFailed, err
	}

	code, _, errs := a.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		return classify(err), err
	}
	return code, nil
}

func classify(err error) int {
	switch {
	case errors.Is(err, fasthttp.ErrTimeout),
		errors.Is(err, fasthttp.ErrDialTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return StatusConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	return StatusSendFailed
}
