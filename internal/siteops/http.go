package siteops

import (
	"net"
	"net/http"
	"time"
)

// keepAlive is the TCP keep-alive period for both clients.
const keepAlive = 30 * time.Second

// NewHTTPClients returns the metadata client (overall request timeout
// dataTimeout) and the transfer client (no overall timeout, so large
// downloads are bounded only by the context). Both dial with
// connectTimeout.
func NewHTTPClients(connectTimeout, dataTimeout time.Duration) (meta, transfer *http.Client) {
	newTransport := func() *http.Transport {
		t := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
		t.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: keepAlive}).DialContext
		t.TLSHandshakeTimeout = connectTimeout
		t.ResponseHeaderTimeout = dataTimeout

		return t
	}

	meta = &http.Client{Transport: newTransport(), Timeout: dataTimeout}
	transfer = &http.Client{Transport: newTransport()}

	return meta, transfer
}
