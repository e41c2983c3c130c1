// Package httpc builds the HTTP clients used to reach the classifier
// providers and the recommendation backend.
package httpc

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// transport is shared so every client pools connections together.
var transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}).DialContext,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       DefaultIdleConnTimeout,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// NewClient returns a client with the given overall timeout.
// A zero timeout disables the per-request deadline; callers then rely on the context.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
