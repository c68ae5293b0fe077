package upstream

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
)

func TestClassifyDNSError(t *testing.T) {
	err := &url.Error{Op: "Get", URL: "https://nope.invalid", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}}
	info := Classify(err)
	if info.Category != CategoryDNSResolution {
		t.Errorf("Category = %v, want %v", info.Category, CategoryDNSResolution)
	}
	if !info.Retryable {
		t.Error("expected DNS errors to be retryable")
	}
	if info.SuggestedStatus != 502 {
		t.Errorf("SuggestedStatus = %d, want 502", info.SuggestedStatus)
	}
}

func TestClassifyConnectionRefused(t *testing.T) {
	err := errors.New("dial tcp 127.0.0.1:1234: connect: connection refused")
	info := Classify(err)
	if info.Category != CategoryConnectionRefused {
		t.Errorf("Category = %v, want %v", info.Category, CategoryConnectionRefused)
	}
	if !info.Retryable {
		t.Error("expected connection refused to be retryable")
	}
}

func TestClassifyConnectionReset(t *testing.T) {
	err := errors.New("read: connection reset by peer")
	info := Classify(err)
	if info.Category != CategoryConnectionReset {
		t.Errorf("Category = %v, want %v", info.Category, CategoryConnectionReset)
	}
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "context deadline exceeded while dialing" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestClassifyConnectTimeout(t *testing.T) {
	info := Classify(fakeTimeoutErr{})
	if info.Category != CategoryTimeoutConnect {
		t.Errorf("Category = %v, want %v", info.Category, CategoryTimeoutConnect)
	}
	if info.SuggestedStatus != 504 {
		t.Errorf("SuggestedStatus = %d, want 504", info.SuggestedStatus)
	}
}

type fakeReadTimeoutErr struct{}

func (fakeReadTimeoutErr) Error() string   { return "timeout reading response body" }
func (fakeReadTimeoutErr) Timeout() bool   { return true }
func (fakeReadTimeoutErr) Temporary() bool { return true }

func TestClassifyReadTimeout(t *testing.T) {
	info := Classify(fakeReadTimeoutErr{})
	if info.Category != CategoryTimeoutRead {
		t.Errorf("Category = %v, want %v", info.Category, CategoryTimeoutRead)
	}
}

func TestClassifyContextDeadlineExceeded(t *testing.T) {
	info := Classify(context.DeadlineExceeded)
	if info.Category != CategoryTimeoutRead {
		t.Errorf("Category = %v, want %v (no connect/dial text present)", info.Category, CategoryTimeoutRead)
	}
}

func TestClassifySSLError(t *testing.T) {
	err := errors.New("x509: certificate signed by unknown authority")
	info := Classify(err)
	if info.Category != CategorySSL {
		t.Errorf("Category = %v, want %v", info.Category, CategorySSL)
	}
	if info.Retryable {
		t.Error("expected SSL errors to be non-retryable")
	}
}

func TestClassifyProxyError(t *testing.T) {
	err := errors.New("proxy error: failed to connect to upstream proxy")
	info := Classify(err)
	if info.Category != CategoryProxy {
		t.Errorf("Category = %v, want %v", info.Category, CategoryProxy)
	}
}

func TestClassifyUnknownFallback(t *testing.T) {
	info := Classify(errors.New("something completely unexpected"))
	if info.Category != CategoryUnknown {
		t.Errorf("Category = %v, want %v", info.Category, CategoryUnknown)
	}
	if !info.Retryable {
		t.Error("expected unknown errors to default to retryable")
	}
}
