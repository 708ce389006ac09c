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

package resolver

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jigsaw-Code/doh-resolver/dnscache"
	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// Version identifies the library in the User-Agent of outgoing requests.
const Version = "1.0.0"

// Defaults applied by [New] for zero-valued [Options] fields.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultTries       = 4
	DefaultConcurrency = 4
	DefaultTTL         = 300
	DefaultMaxTTL      = 86400
)

// DefaultServers are the servers used when [Options].Servers is empty.
var DefaultServers = []string{"1.1.1.1", "1.0.0.1"}

// Address ordering policies for [Resolver.Lookup] results.
const (
	OrderVerbatim  = "verbatim"
	OrderIPv4First = "ipv4first"
)

// Options configures a [Resolver]. The zero value is usable: every field has a
// default.
type Options struct {
	// Timeout bounds the first attempt against each server; attempt i gets
	// Timeout << i. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// Tries is the number of attempts per server, at least 1.
	Tries int

	// Servers are the DoH endpoints, tried in order. Hosts, host:port pairs and
	// bracketed IPv6 literals are accepted. Defaults to [DefaultServers].
	Servers []string

	// Protocol is "https" (default) or "http".
	Protocol string

	// Method is "GET" (default) or "POST".
	Method string

	// Headers are extra headers added to every request.
	Headers http.Header

	// UserAgent overrides the default "doh-resolver/<version>" identifier.
	UserAgent string

	// QueryID supplies the DNS message id per query. Nil means a constant 0,
	// which keeps GET URLs cacheable.
	QueryID func() uint16

	// Concurrency bounds the ResolveAny fan-out width.
	Concurrency int

	// Cache stores successful responses. Nil selects an in-process
	// [dnscache.MemoryStore]; set DisableCache to run without one.
	Cache dnscache.Store

	// DisableCache turns caching off entirely.
	DisableCache bool

	// DefaultTTLSeconds is the entry TTL for responses without answer TTLs.
	DefaultTTLSeconds uint32

	// MaxTTLSeconds caps every entry TTL.
	MaxTTLSeconds uint32

	// SetCacheArgs produces extra backend arguments for each cache write, for
	// example a server-side expiration for a key-value store.
	SetCacheArgs func(key string, entry *dnscache.Entry) []any

	// DNSOrder is [OrderVerbatim] (default) or [OrderIPv4First].
	DNSOrder string

	// SmartRotate demotes servers that failed a query to the tail of the
	// rotation once the query completes.
	SmartRotate bool

	// ReturnHTTPErrors surfaces a transport-level [doh.HTTPError] verbatim
	// instead of folding it into the DNS error taxonomy when it is an HTTP 404
	// or the only error of the query. A query that failed with several errors
	// still returns them combined into one [DNSError].
	ReturnHTTPErrors bool

	// RoundTripper replaces the HTTP exchange. Nil selects a [doh.Transport]
	// built from Method, Headers and UserAgent.
	RoundTripper doh.RoundTripper

	// HostsPath overrides the platform hosts file location. Empty selects the
	// platform default.
	HostsPath string

	// Logger receives diagnostic events at the request, response, cache and
	// error boundaries. Nil discards them.
	Logger *slog.Logger
}

// withDefaults returns a copy of o with every zero field set to its default.
func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Tries == 0 {
		out.Tries = DefaultTries
	}
	if len(out.Servers) == 0 {
		out.Servers = DefaultServers
	}
	if out.Protocol == "" {
		out.Protocol = "https"
	}
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	if out.UserAgent == "" {
		out.UserAgent = "doh-resolver/" + Version
	}
	if out.Concurrency == 0 {
		out.Concurrency = DefaultConcurrency
	}
	if out.DefaultTTLSeconds == 0 {
		out.DefaultTTLSeconds = DefaultTTL
	}
	if out.MaxTTLSeconds == 0 {
		out.MaxTTLSeconds = DefaultMaxTTL
	}
	if out.DNSOrder == "" {
		out.DNSOrder = OrderVerbatim
	}
	if out.Cache == nil && !out.DisableCache {
		out.Cache = dnscache.NewMemoryStore()
	}
	if out.DisableCache {
		out.Cache = nil
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}

// validate checks the enumerated fields after defaulting.
func (o *Options) validate() error {
	if o.Timeout < 0 {
		return &DNSError{
			Message: fmt.Sprintf("timeout must not be negative, got %v", o.Timeout),
			Code:    CodeInvalidArgValue,
		}
	}
	if o.Tries < 1 {
		return &DNSError{
			Message: fmt.Sprintf("tries must be at least 1, got %d", o.Tries),
			Code:    CodeInvalidArgValue,
		}
	}
	if o.Protocol != "http" && o.Protocol != "https" {
		return &DNSError{
			Message: fmt.Sprintf("protocol must be http or https, got %q", o.Protocol),
			Code:    CodeInvalidArgValue,
		}
	}
	if o.Method != http.MethodGet && o.Method != http.MethodPost {
		return &DNSError{
			Message: fmt.Sprintf("method must be GET or POST, got %q", o.Method),
			Code:    CodeInvalidArgValue,
		}
	}
	if o.DNSOrder != OrderVerbatim && o.DNSOrder != OrderIPv4First {
		return &DNSError{
			Message: fmt.Sprintf("dnsOrder must be %s or %s, got %q", OrderVerbatim, OrderIPv4First, o.DNSOrder),
			Code:    CodeInvalidArgValue,
		}
	}
	return nil
}

// ResolveOptions tunes a single resolve call. The zero value (and nil) request
// the default behavior.
type ResolveOptions struct {
	// TTL includes per-answer TTLs in A and AAAA results.
	TTL bool

	// ECSSubnet adds an EDNS client-subnet option ("1.2.3.0/24" or a bare
	// address) to the query and partitions the cache key.
	ECSSubnet string

	// PurgeCache skips any cached entry and overwrites it after resolution.
	PurgeCache bool

	// noThrowOnNODATA turns an empty answer set into an empty result instead of
	// a NODATA error. Lookup uses it for its parallel A and AAAA children.
	noThrowOnNODATA bool
}

func (o *ResolveOptions) orEmpty() ResolveOptions {
	if o == nil {
		return ResolveOptions{}
	}
	return *o
}

// Hint flags for [LookupOptions].Hints.
const (
	// HintAddrConfig restricts result families to those the host has a
	// configured non-loopback address for.
	HintAddrConfig = 1 << iota
	// HintV4Mapped reports IPv4 answers in their v4-mapped IPv6 form when
	// family 6 was requested and no native IPv6 answer exists.
	HintV4Mapped
	// HintAll returns all addresses, as if [LookupOptions].All were set.
	HintAll
)

// LookupOptions tunes [Resolver.Lookup]. The zero value requests the default
// behavior: both families, first address only, resolver-configured ordering.
type LookupOptions struct {
	// Family restricts results to IPv4 (4) or IPv6 (6); 0 means both.
	Family int

	// Hints is a bitmask of [HintAddrConfig], [HintV4Mapped] and [HintAll].
	Hints int

	// All returns every address instead of only the first.
	All bool

	// Verbatim keeps the answer order as resolved even when the resolver is
	// configured with [OrderIPv4First].
	Verbatim bool

	// PurgeCache skips cached entries for the underlying A and AAAA queries.
	PurgeCache bool
}
