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
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/Jigsaw-Code/doh-resolver/internal/services"
)

// Reverse resolves an IP address to hostnames: hosts rules whose address
// matches yield their alias list without network, everything else goes
// through a PTR query on the in-addr.arpa / ip6.arpa name.
func (r *Resolver) Reverse(ctx context.Context, ip string) ([]string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, &DNSError{
			Message:  fmt.Sprintf("invalid IP address %q", ip),
			Code:     CodeInvalidArgValue,
			Syscall:  "getHostByAddr",
			Hostname: ip,
		}
	}
	if names, ok := r.hostsNamesFor(addr); ok {
		return names, nil
	}

	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return nil, &DNSError{Message: err.Error(), Code: CodeInval, Syscall: "getHostByAddr", Hostname: ip}
	}
	names, err := r.ResolvePTR(ctx, strings.TrimSuffix(arpa, "."), nil)
	if err != nil {
		var d *DNSError
		if errors.As(err, &d) {
			d.Syscall = "getHostByAddr"
			d.Hostname = ip
		}
		return nil, err
	}
	return names, nil
}

// hostsNamesFor returns the alias list of the first hosts rule matching addr,
// dropping the canonical first name. The v4 and v6 loopback addresses match
// each other's rules.
func (r *Resolver) hostsNamesFor(addr netip.Addr) ([]string, bool) {
	matches := func(rule netip.Addr) bool {
		if rule == addr {
			return true
		}
		return addr.IsLoopback() && rule.IsLoopback()
	}
	for _, rule := range r.hosts {
		if matches(rule.Addr) {
			return rule.Names[1:], true
		}
	}
	return nil, false
}

// ServiceResult is a [Resolver.LookupService] answer.
type ServiceResult struct {
	Hostname string `json:"hostname"`
	Service  string `json:"service"`
}

// LookupService resolves an address and port to a hostname and service name
// the way getnameinfo does: [Resolver.Reverse] for the hostname, the
// well-known port table (TCP first, then UDP) for the service. Unknown ports
// come back as their decimal string.
func (r *Resolver) LookupService(ctx context.Context, address string, port int) (*ServiceResult, error) {
	if port < 0 || port > 65535 {
		return nil, &DNSError{
			Message: fmt.Sprintf("port should be >= 0 and < 65536, got %d", port),
			Code:    CodeBadPort,
			Syscall: "getnameinfo",
		}
	}
	if _, err := netip.ParseAddr(address); err != nil {
		return nil, &DNSError{
			Message:  fmt.Sprintf("invalid address %q", address),
			Code:     CodeInvalidArgValue,
			Syscall:  "getnameinfo",
			Hostname: address,
		}
	}

	names, err := r.Reverse(ctx, address)
	if err != nil {
		var d *DNSError
		if errors.As(err, &d) {
			d.Syscall = "getnameinfo"
		}
		return nil, err
	}
	hostname := address
	if len(names) > 0 {
		hostname = names[0]
	}
	service := services.Name(port)
	if service == "" {
		service = strconv.Itoa(port)
	}
	return &ServiceResult{Hostname: hostname, Service: service}, nil
}
