package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Redact renders err with any bot token in request URLs masked.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// ShouldRetry reports whether a failed Bot API call may succeed when repeated:
// flood control, 5xx replies, timeouts and dial failures.
func ShouldRetry(err error) bool {
	switch Classify(err) {
	case "flood", "http_5xx", "timeout", "dial":
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Temporary()
}

// Classify buckets a failed call for the err_kind log field.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	var netErr net.Error
	var alert tls.AlertError
	switch {
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert):
		return "tls"
	}

	switch status := HTTPStatus(err); {
	case status == http.StatusTooManyRequests:
		return "flood"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// HTTPStatus extracts the Bot API status code carried by err, or 0.
func HTTPStatus(err error) int {
	var apiErr *tele.Error
	var flood tele.FloodError
	var group tele.GroupError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &group):
		return http.StatusBadRequest
	}
	// telebot formats unknown API failures as "... (code)".
	msg := err.Error()
	open, end := strings.LastIndexByte(msg, '('), strings.LastIndexByte(msg, ')')
	if open < 0 || end <= open+1 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end]))
	if convErr != nil {
		return 0
	}
	return code
}
