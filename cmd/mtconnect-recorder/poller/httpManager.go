package poller

import (
	"net"
	"net/http"
	"sync"
	"time"
)

var clientPool sync.Map

// GetHTTPClient returns a pooled client for the given endpoint, so repeated
// polls of the same controller reuse connections instead of redialing at
// every tick.
func GetHTTPClient(url string, timeout time.Duration) (client http.Client) {
	rawClient, _ := clientPool.LoadOrStore(url, http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     false,
			MaxIdleConns:          100,
			MaxConnsPerHost:       0,
			IdleConnTimeout:       10 * time.Second,
			TLSHandshakeTimeout:   1 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	})

	client = rawClient.(http.Client)
	return
}
