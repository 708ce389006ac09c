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
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/Jigsaw-Code/doh-resolver/dnscache"
	"github.com/Jigsaw-Code/doh-resolver/doh"
	"github.com/Jigsaw-Code/doh-resolver/internal/cancelset"
	"github.com/Jigsaw-Code/doh-resolver/internal/hostsfile"
	"github.com/Jigsaw-Code/doh-resolver/transport"
)

// Resolver resolves DNS queries over HTTPS against an ordered rotation of
// servers. Create one with [New].
//
// Resolver is safe for concurrent use by multiple goroutines. The server
// rotation is the only state it mutates across calls.
type Resolver struct {
	opts    Options
	rt      doh.RoundTripper
	ownRT   bool
	cancels *cancelset.Set
	cache   dnscache.Store
	hosts   []hostsfile.Rule
	log     *slog.Logger

	mu      sync.Mutex
	servers []string
}

// New creates a [Resolver]. opts may be nil for all defaults.
func New(opts *Options) (*Resolver, error) {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}
	servers, err := parseServers(o.Servers)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		opts:    o,
		cancels: cancelset.New(),
		cache:   o.Cache,
		log:     o.Logger,
		servers: servers,
	}
	if r.rt = o.RoundTripper; r.rt == nil {
		r.rt = doh.NewTransport(nil, o.Method, o.Headers, o.UserAgent)
		r.ownRT = true
	}
	path := o.HostsPath
	if path == "" {
		path = hostsfile.Path()
	}
	r.hosts = hostsfile.Load(path)
	return r, nil
}

// GetServers returns the servers in current rotation order.
func (r *Resolver) GetServers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.servers))
	copy(out, r.servers)
	return out
}

// SetServers replaces the rotation. Entries may be hosts, host:port pairs or
// bracketed IPv6 literals; duplicates are dropped keeping the first occurrence.
// An empty list is rejected.
func (r *Resolver) SetServers(servers []string) error {
	parsed, err := parseServers(servers)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.servers = parsed
	r.mu.Unlock()
	return nil
}

// Cancel aborts every in-flight operation on the resolver. Aborted operations
// fail with [CodeCancelled]; subsequent calls proceed normally.
func (r *Resolver) Cancel() {
	r.cancels.CancelAll()
}

// SetLocalAddress binds outgoing connections to the given local IPv4 and/or
// IPv6 addresses. Either argument may be empty to leave that family unbound.
// It fails when the resolver was created with a custom RoundTripper.
func (r *Resolver) SetLocalAddress(v4, v6 string) error {
	if !r.ownRT {
		return &DNSError{
			Message: "cannot set a local address on a custom transport",
			Code:    CodeInvalidArgValue,
		}
	}
	var addr4, addr6 netip.Addr
	if v4 != "" {
		a, err := netip.ParseAddr(v4)
		if err != nil || !a.Is4() {
			return &DNSError{
				Message: fmt.Sprintf("invalid local IPv4 address %q", v4),
				Code:    CodeInvalidArgValue,
			}
		}
		addr4 = a
	}
	if v6 != "" {
		a, err := netip.ParseAddr(v6)
		if err != nil || !a.Is6() || a.Is4In6() {
			return &DNSError{
				Message: fmt.Sprintf("invalid local IPv6 address %q", v6),
				Code:    CodeInvalidArgValue,
			}
		}
		addr6 = a
	}
	dialer := transport.FuncStreamDialer(func(ctx context.Context, raddr string) (transport.StreamConn, error) {
		local := addr4
		if host, _, err := net.SplitHostPort(raddr); err == nil {
			if remote, err := netip.ParseAddr(host); err == nil && remote.Is6() && !remote.Is4In6() {
				local = addr6
			}
		}
		if !local.IsValid() {
			if local = addr4; !local.IsValid() {
				local = addr6
			}
		}
		td := &transport.TCPDialer{}
		if local.IsValid() {
			td.Dialer.LocalAddr = &net.TCPAddr{IP: local.AsSlice()}
		}
		return td.DialStream(ctx, raddr)
	})
	r.mu.Lock()
	r.rt = doh.NewTransport(dialer, r.opts.Method, r.opts.Headers, r.opts.UserAgent)
	r.mu.Unlock()
	return nil
}

// roundTripper returns the transport under the lock, so SetLocalAddress can
// swap it while queries are in flight.
func (r *Resolver) roundTripper() doh.RoundTripper {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rt
}

// parseServers validates and deduplicates a server list.
func parseServers(servers []string) ([]string, error) {
	if len(servers) == 0 {
		return nil, &DNSError{
			Message: "at least one server is required",
			Code:    CodeMissingArgs,
			Syscall: "setServers",
		}
	}
	seen := make(map[string]bool, len(servers))
	out := make([]string, 0, len(servers))
	for _, raw := range servers {
		server := strings.TrimSpace(raw)
		if !validServer(server) {
			return nil, &DNSError{
				Message: fmt.Sprintf("invalid server %q", raw),
				Code:    CodeInvalidArgValue,
				Syscall: "setServers",
			}
		}
		if seen[server] {
			continue
		}
		seen[server] = true
		out = append(out, server)
	}
	return out, nil
}

// validServer accepts hosts, host:port pairs, bare and bracketed IPv6
// literals. Anything carrying a scheme, path or whitespace is rejected.
func validServer(server string) bool {
	if server == "" || strings.ContainsAny(server, "/ \t") {
		return false
	}
	if _, err := netip.ParseAddr(server); err == nil {
		return true
	}
	if _, err := netip.ParseAddrPort(server); err == nil {
		return true
	}
	if strings.HasPrefix(server, "[") {
		host := strings.TrimPrefix(strings.TrimSuffix(server, "]"), "[")
		_, err := netip.ParseAddr(host)
		return strings.HasSuffix(server, "]") && err == nil
	}
	host, port, err := net.SplitHostPort(server)
	if err == nil {
		if port == "" {
			return false
		}
		server = host
	}
	// Hostname: letters, digits, hyphens and dots.
	for _, c := range server {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			return false
		}
	}
	return server != ""
}
