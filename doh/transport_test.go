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
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransportGET(t *testing.T) {
	query := []byte{0x00, 0x01, 0x02}
	answer := []byte{0x0a, 0x0b}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, mimeType, r.Header.Get("Accept"))
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		dnsParam := r.URL.Query().Get("dns")
		decoded, err := base64.RawURLEncoding.DecodeString(dnsParam)
		require.NoError(t, err)
		require.Equal(t, query, decoded)
		w.Write(answer)
	}))
	defer server.Close()

	rt := NewTransport(nil, http.MethodGet, nil, "test-agent")
	body, err := rt.RoundTrip(context.Background(), server.URL, query)
	require.NoError(t, err)
	require.Equal(t, answer, body)
}

func TestTransportPOST(t *testing.T) {
	query := []byte{0x00, 0x01, 0x02}
	answer := []byte{0x0a, 0x0b}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, mimeType, r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, query, body)
		w.Write(answer)
	}))
	defer server.Close()

	rt := NewTransport(nil, http.MethodPost, nil, "")
	body, err := rt.RoundTrip(context.Background(), server.URL, query)
	require.NoError(t, err)
	require.Equal(t, answer, body)
}

func TestTransportExtraHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "abc", r.Header.Get("X-Custom"))
		w.Write([]byte{0x00})
	}))
	defer server.Close()

	rt := NewTransport(nil, http.MethodGet, http.Header{"X-Custom": []string{"abc"}}, "")
	_, err := rt.RoundTrip(context.Background(), server.URL, []byte{0x00})
	require.NoError(t, err)
}

func TestTransportHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	rt := NewTransport(nil, http.MethodGet, nil, "")
	_, err := rt.RoundTrip(context.Background(), server.URL, []byte{0x00})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	require.Equal(t, []byte("overloaded"), httpErr.Body)
}

func TestTransportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := NewTransport(nil, http.MethodGet, nil, "")
	_, err := rt.RoundTrip(ctx, "https://example.invalid/dns-query", []byte{0x00})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestEndpointURL(t *testing.T) {
	for _, tc := range []struct {
		protocol, server, want string
	}{
		{"https", "1.1.1.1", "https://1.1.1.1/dns-query"},
		{"https", "dns.google", "https://dns.google/dns-query"},
		{"https", "2606:4700:4700::1111", "https://[2606:4700:4700::1111]/dns-query"},
		{"https", "[2606:4700:4700::1111]:443", "https://[2606:4700:4700::1111]:443/dns-query"},
		{"http", "localhost:8053", "http://localhost:8053/dns-query"},
	} {
		t.Run(tc.server, func(t *testing.T) {
			require.Equal(t, tc.want, EndpointURL(tc.protocol, tc.server))
		})
	}
}
