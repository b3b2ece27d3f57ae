package download

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// NewHTTPClient returns the client shared by downloads and community clients.
// Cookies are kept per registrable domain. timeout of zero leaves the
// deadline to the caller's context.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	return &http.Client{Jar: jar, Timeout: timeout, Transport: transport}, nil
}
