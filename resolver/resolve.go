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
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/Jigsaw-Code/doh-resolver/dnscache"
	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// Resolve answers one question with the record-type-specific shape of the
// matching Resolve* method: []string for A (or []AddressTTL with opts.TTL),
// []MX for MX, [][]string for TXT and so on. Record types without a dedicated
// projection return the raw answer data values.
func (r *Resolver) Resolve(ctx context.Context, name, rrtype string, opts *ResolveOptions) (any, error) {
	o := opts.orEmpty()
	if rrtype == "" {
		rrtype = "A"
	}
	switch strings.ToUpper(rrtype) {
	case "A", "AAAA":
		if o.TTL {
			return r.resolveAddresses(ctx, name, strings.ToUpper(rrtype), o)
		}
		answers, err := r.resolveAddresses(ctx, name, strings.ToUpper(rrtype), o)
		if err != nil {
			return nil, err
		}
		return addressesOnly(answers), nil
	case "CNAME":
		return r.ResolveCNAME(ctx, name, opts)
	case "NS":
		return r.ResolveNS(ctx, name, opts)
	case "PTR":
		return r.ResolvePTR(ctx, name, opts)
	case "MX":
		return r.ResolveMX(ctx, name, opts)
	case "TXT":
		return r.ResolveTXT(ctx, name, opts)
	case "SRV":
		return r.ResolveSRV(ctx, name, opts)
	case "SOA":
		return r.ResolveSOA(ctx, name, opts)
	case "CAA":
		return r.ResolveCAA(ctx, name, opts)
	case "NAPTR":
		return r.ResolveNAPTR(ctx, name, opts)
	case "CERT":
		return r.ResolveCERT(ctx, name, opts)
	case "TLSA":
		return r.ResolveTLSA(ctx, name, opts)
	case "ANY":
		return r.ResolveAny(ctx, name, opts)
	}
	answers, err := r.resolveAnswers(ctx, name, strings.ToUpper(rrtype), o)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(answers))
	for _, a := range answers {
		out = append(out, a.Data)
	}
	return out, nil
}

// resolveResponse runs the shared resolve flow: argument validation, cache
// read with TTL decay, network query, rcode mapping and the cache write.
func (r *Resolver) resolveResponse(ctx context.Context, name, rrtype string, opts ResolveOptions) (*doh.Response, error) {
	syscallName := "query" + titleCase(rrtype)
	if typeCode(rrtype) == 0 {
		return nil, &DNSError{
			Message:  fmt.Sprintf("unknown record type %q", rrtype),
			Code:     CodeInvalidArgValue,
			Syscall:  syscallName,
			Hostname: name,
		}
	}
	if !validateName(name) {
		return nil, newDNSError(CodeBadName, syscallName, name)
	}

	key := dnscache.Key(rrtype, opts.ECSSubnet, name)
	if r.cache != nil && !opts.PurgeCache {
		value, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		}
		if entry := dnscache.Decay(dnscache.Hydrate(value), time.Now()); entry != nil {
			r.log.DebugContext(ctx, "cache hit", "key", key, "ttl", entry.TTL)
			return &entry.Response, nil
		} else if value != nil {
			r.log.DebugContext(ctx, "cache entry expired", "key", key)
		}
	}

	qctx, release := r.cancels.Derive(ctx)
	defer release()
	resp, err := r.query(qctx, name, rrtype, opts.ECSSubnet)
	if err != nil {
		return nil, relabel(err, syscallName, name)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, newDNSError(codeForRcode(resp.Rcode), syscallName, name)
	}

	if r.cache != nil {
		if resp.Truncated {
			r.log.DebugContext(ctx, "truncated response not cached", "key", key)
		} else {
			entry := dnscache.NewEntry(resp, r.opts.DefaultTTLSeconds, r.opts.MaxTTLSeconds, time.Now())
			var extra []any
			if r.opts.SetCacheArgs != nil {
				extra = r.opts.SetCacheArgs(key, entry)
			}
			if err := r.cache.Set(ctx, key, entry, extra...); err != nil {
				r.log.WarnContext(ctx, "cache write failed", "key", key, "error", err)
			}
		}
	}
	return resp, nil
}

// resolveAnswers filters the response to answers of the requested type and
// raises NODATA on an empty result unless the caller opted out.
func (r *Resolver) resolveAnswers(ctx context.Context, name, rrtype string, opts ResolveOptions) ([]doh.Answer, error) {
	resp, err := r.resolveResponse(ctx, name, rrtype, opts)
	if err != nil {
		return nil, err
	}
	want := strings.ToUpper(rrtype)
	answers := make([]doh.Answer, 0, len(resp.Answers))
	for _, a := range resp.Answers {
		if strings.ToUpper(a.Type) == want {
			answers = append(answers, a)
		}
	}
	if len(answers) == 0 && !opts.noThrowOnNODATA {
		return nil, newDNSError(CodeNoData, "query"+titleCase(rrtype), name)
	}
	return answers, nil
}

// relabel stamps the query's pseudo syscall and hostname onto an error from
// the engine. Transport errors surfaced verbatim pass through untouched.
func relabel(err error, syscallName, hostname string) error {
	if _, ok := err.(*doh.HTTPError); ok {
		return err
	}
	var d *DNSError
	if errors.As(err, &d) {
		if d.Syscall == "" {
			d.Syscall = syscallName
		}
		if d.Hostname == "" {
			d.Hostname = hostname
		}
		return d
	}
	return &DNSError{
		Message:  err.Error(),
		Code:     classify(err),
		Syscall:  syscallName,
		Hostname: hostname,
		Errors:   []error{err},
	}
}
