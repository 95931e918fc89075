package safehttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckHost(t *testing.T) {
	tests := []struct {
		host    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"169.254.169.254", true},
		{"10.0.0.8", true},
		{"192.168.1.20", true},
		{"0.0.0.0", true},
		{"metadata.google.internal", true},
		{"Metadata.Google.Internal.", true},
		{"93.184.216.34", false},
		{"example.com", false},
	}
	for _, tt := range tests {
		err := CheckHost(tt.host)
		if (err != nil) != tt.blocked {
			t.Errorf("CheckHost(%s) = %v, want blocked=%v", tt.host, err, tt.blocked)
		}
		if err != nil && !errors.Is(err, ErrBlocked) {
			t.Errorf("CheckHost(%s) = %v, want ErrBlocked", tt.host, err)
		}
	}
}

func TestClientRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("internal"))
	}))
	defer srv.Close()

	resp, err := NewClient(5 * time.Second).Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("fetched a loopback address")
	}
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked", err)
	}
}

func TestClientRedirectToBlockedHost(t *testing.T) {
	c := NewClient(time.Second)
	req := httptest.NewRequest(http.MethodGet, "http://169.254.169.254/latest/meta-data", nil)
	if err := c.CheckRedirect(req, []*http.Request{req}); !errors.Is(err, ErrBlocked) {
		t.Errorf("redirect err = %v, want ErrBlocked", err)
	}
	via := make([]*http.Request, maxRedirects)
	if err := c.CheckRedirect(httptest.NewRequest(http.MethodGet, "http://example.com/", nil), via); err == nil {
		t.Error("redirect limit not enforced")
	}
}
