// Copyright 2024 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package doh

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/Jigsaw-Code/doh-resolver/transport"
)

const mimeType = "application/dns-message"

// RoundTripper is an interface representing the ability to execute a single
// DNS-over-HTTPS exchange against one server, obtaining the raw response message
// for a given query message.
type RoundTripper interface {
	RoundTrip(ctx context.Context, serverURL string, query []byte) ([]byte, error)
}

// RoundTripFunc is a [RoundTripper] that uses the given function for the exchange.
type RoundTripFunc func(ctx context.Context, serverURL string, query []byte) ([]byte, error)

// RoundTrip implements the [RoundTripper] interface.
func (f RoundTripFunc) RoundTrip(ctx context.Context, serverURL string, query []byte) ([]byte, error) {
	return f(ctx, serverURL, query)
}

// HTTPError is returned by [Transport.RoundTrip] when the server answers with a
// non-2xx status. The body is fully read and the connection released before the
// error is returned.
type HTTPError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

var _ error = (*HTTPError)(nil)

func (e *HTTPError) Error() string {
	return fmt.Sprintf("got HTTP status %v", e.StatusCode)
}

// Transport executes RFC 8484 exchanges over an HTTP client. The zero value is
// not usable; create instances with [NewTransport].
type Transport struct {
	client    *http.Client
	usePOST   bool
	headers   http.Header
	userAgent string
}

var _ RoundTripper = (*Transport)(nil)

// NewTransport creates a [Transport] that dials servers with sd (direct TCP when
// nil). method is "GET" (the query is carried base64url-encoded in the dns query
// parameter) or "POST" (the query is the request body). headers, when non-nil,
// are added to every request.
//
// The underlying HTTP client reuses connections when possible and attempts HTTP/2.
func NewTransport(sd transport.StreamDialer, method string, headers http.Header, userAgent string) *Transport {
	if sd == nil {
		sd = &transport.TCPDialer{}
	}
	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return sd.DialStream(ctx, addr)
	}
	return &Transport{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           dialContext,
				ForceAttemptHTTP2:     true,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 20 * time.Second,
			},
		},
		usePOST:   strings.EqualFold(method, http.MethodPost),
		headers:   headers,
		userAgent: userAgent,
	}
}

// RoundTrip implements [RoundTripper]. serverURL is the full RFC 8484 template,
// like "https://1.1.1.1/dns-query". The context bounds the whole exchange;
// cancelling it aborts any in-flight I/O.
func (t *Transport) RoundTrip(ctx context.Context, serverURL string, query []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var req *http.Request
	var err error
	if t.usePOST {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(query))
		if err == nil {
			req.Header.Set("Content-Type", mimeType)
		}
	} else {
		url := serverURL + "?dns=" + base64.RawURLEncoding.EncodeToString(query)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mimeType)
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for key, values := range t.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readAllBytes(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// readAllBytes buffers a response body into contiguous bytes, bounded by the
// maximum DNS message size.
func readAllBytes(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, maxMsgSize+1))
}

// EndpointURL builds the RFC 8484 URL for a server. The server may be a host
// name, an IPv4 address, or an IPv6 address with or without brackets.
func EndpointURL(protocol, server string) string {
	host := server
	if addr, err := netip.ParseAddr(host); err == nil && addr.Is6() {
		host = "[" + host + "]"
	}
	return protocol + "://" + host + "/dns-query"
}
