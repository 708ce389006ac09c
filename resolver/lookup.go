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
	"net"
	"net/netip"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// LookupAddr is one address of a [Resolver.Lookup] result.
type LookupAddr struct {
	Address string `json:"address"`
	Family  int    `json:"family"`
}

// Lookup resolves a hostname to addresses the way getaddrinfo does: hosts
// file first, IP literals and localhost without network, then parallel A and
// AAAA queries. Without opts.All (or [HintAll]) the result holds only the
// first address.
func (r *Resolver) Lookup(ctx context.Context, name string, opts *LookupOptions) ([]LookupAddr, error) {
	o := LookupOptions{}
	if opts != nil {
		o = *opts
	}
	if name == "." {
		// The root name never has addresses: authoritative negative.
		return nil, newDNSError(CodeNotFound, "getaddrinfo", name)
	}
	if !validateName(name) {
		return nil, newDNSError(CodeBadName, "getaddrinfo", name)
	}
	if o.Family != 0 && o.Family != 4 && o.Family != 6 {
		return nil, &DNSError{
			Message:  fmt.Sprintf("family must be 0, 4 or 6, got %d", o.Family),
			Code:     CodeBadFamily,
			Syscall:  "getaddrinfo",
			Hostname: name,
		}
	}
	if o.Hints&^(HintAddrConfig|HintV4Mapped|HintAll) != 0 {
		return nil, &DNSError{
			Message:  fmt.Sprintf("invalid hints flags %#x", o.Hints),
			Code:     CodeBadHints,
			Syscall:  "getaddrinfo",
			Hostname: name,
		}
	}
	if o.Hints&HintAll != 0 {
		o.All = true
	}
	if o.Hints&HintAddrConfig != 0 && o.Family == 0 {
		o.Family = configuredFamily()
	}

	addrs4, addrs6, seeded := r.seedAddresses(name)
	if !seeded {
		var err error
		addrs4, addrs6, err = r.lookupNetwork(ctx, name, o)
		if err != nil {
			return nil, err
		}
	}

	if o.Hints&HintV4Mapped != 0 && o.Family == 6 && len(addrs6) == 0 {
		for _, a := range addrs4 {
			if addr, err := netip.ParseAddr(a); err == nil && addr.Is4() {
				addrs6 = append(addrs6, netip.AddrFrom16(addr.As16()).String())
			}
		}
		addrs4 = nil
	}

	out := make([]LookupAddr, 0, len(addrs4)+len(addrs6))
	if o.Family != 6 {
		for _, a := range addrs4 {
			out = append(out, LookupAddr{Address: a, Family: 4})
		}
	}
	if o.Family != 4 {
		for _, a := range addrs6 {
			out = append(out, LookupAddr{Address: a, Family: 6})
		}
	}
	if len(out) == 0 {
		return nil, newDNSError(CodeNoData, "getaddrinfo", name)
	}

	if !o.Verbatim && r.opts.DNSOrder == OrderIPv4First {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	}
	if !o.All {
		out = out[:1]
	}
	return out, nil
}

// seedAddresses answers a lookup without network: IP literals map to
// themselves, hosts rules contribute their address, and localhost falls back
// to the loopback pair.
func (r *Resolver) seedAddresses(name string) (addrs4, addrs6 []string, seeded bool) {
	if addr, err := netip.ParseAddr(name); err == nil {
		if addr.Is4() || addr.Is4In6() {
			return []string{name}, nil, true
		}
		return nil, []string{name}, true
	}

	lower := strings.ToLower(strings.TrimSuffix(name, "."))
	for _, rule := range r.hosts {
		for _, ruleName := range rule.Names {
			if ruleName != lower {
				continue
			}
			if rule.Addr.Is4() || rule.Addr.Is4In6() {
				addrs4 = append(addrs4, rule.Addr.String())
			} else {
				addrs6 = append(addrs6, rule.Addr.String())
			}
			break
		}
	}
	if lower == "localhost" {
		if len(addrs4) == 0 {
			addrs4 = []string{"127.0.0.1"}
		}
		if len(addrs6) == 0 {
			addrs6 = []string{"::1"}
		}
	}
	return addrs4, addrs6, len(addrs4)+len(addrs6) > 0
}

// lookupNetwork runs the A and AAAA queries in parallel, skipping the family
// the caller excluded. With [HintV4Mapped] the A query still runs for family 6,
// so its answers can be mapped into IPv6 form. Both children always settle; a
// child failure only surfaces when no addresses were found at all.
func (r *Resolver) lookupNetwork(ctx context.Context, name string, o LookupOptions) (addrs4, addrs6 []string, err error) {
	ro := ResolveOptions{PurgeCache: o.PurgeCache, noThrowOnNODATA: true}
	qctx, release := r.cancels.Derive(ctx)
	defer release()

	var err4, err6 error
	g := new(errgroup.Group)
	if o.Family != 6 || o.Hints&HintV4Mapped != 0 {
		g.Go(func() error {
			answers, err := r.resolveAddresses(qctx, name, "A", ro)
			if err != nil {
				err4 = err
				return nil
			}
			addrs4 = addressesOnly(answers)
			return nil
		})
	}
	if o.Family != 4 {
		g.Go(func() error {
			answers, err := r.resolveAddresses(qctx, name, "AAAA", ro)
			if err != nil {
				err6 = err
				return nil
			}
			addrs6 = addressesOnly(answers)
			return nil
		})
	}
	g.Wait()

	if len(addrs4)+len(addrs6) > 0 {
		return addrs4, addrs6, nil
	}
	var lookupErrs []error
	for _, e := range []error{err4, err6} {
		if e != nil {
			lookupErrs = append(lookupErrs, e)
		}
	}
	if code := sharedCode(lookupErrs); code != "" {
		if code == CodeBadName {
			code = CodeNotFound
		}
		return nil, nil, &DNSError{
			Code:     code,
			Syscall:  "getaddrinfo",
			Hostname: name,
			Errors:   lookupErrs,
		}
	}
	return nil, nil, nil
}

// sharedCode returns the code every error classifies to, or "" when the list
// is empty or mixed.
func sharedCode(errs []error) string {
	code := ""
	for i, err := range errs {
		c := classify(err)
		var d *DNSError
		if errors.As(err, &d) {
			c = d.Code
		}
		if i == 0 {
			code = c
		} else if c != code {
			return ""
		}
	}
	return code
}

// configuredFamily reports which address families the host has non-loopback
// interface addresses for: 0 for both (or none), 4 or 6 for one.
func configuredFamily() int {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	var has4, has6 bool
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ipNet.IP.To4() != nil {
			has4 = true
		} else {
			has6 = true
		}
	}
	switch {
	case has4 && !has6:
		return 4
	case has6 && !has4:
		return 6
	}
	return 0
}
