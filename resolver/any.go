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

	"golang.org/x/sync/errgroup"

	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// AnyRecord is one element of a [Resolver.ResolveAny] result. Record holds the
// type-specific shape: [AddressTTL] for A and AAAA, [MX], [SRV], [NAPTR] and
// [*SOA] for their types, a string for CNAME, NS and PTR, and []string (the
// answer's character strings) for TXT.
type AnyRecord struct {
	Type   string `json:"type"`
	Record any    `json:"record"`
}

// ResolveAny fans one name out over the A, AAAA, CNAME, MX, NAPTR, NS, PTR,
// SOA, SRV and TXT record types, at most Concurrency queries in flight.
// Results preserve that type order regardless of completion order. Types with
// no data contribute nothing; any other failure cancels the remaining
// children and is returned.
func (r *Resolver) ResolveAny(ctx context.Context, name string, opts *ResolveOptions) ([]AnyRecord, error) {
	o := opts.orEmpty()
	o.noThrowOnNODATA = true

	parent, release := r.cancels.Derive(ctx)
	defer release()
	g, gctx := errgroup.WithContext(parent)
	g.SetLimit(r.opts.Concurrency)

	results := make([][]AnyRecord, len(anyTypes))
	for i, rrtype := range anyTypes {
		i, rrtype := i, rrtype
		g.Go(func() error {
			records, err := r.resolveAnyType(gctx, name, rrtype, o)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]AnyRecord, 0, len(anyTypes))
	for _, records := range results {
		out = append(out, records...)
	}
	return out, nil
}

func (r *Resolver) resolveAnyType(ctx context.Context, name, rrtype string, opts ResolveOptions) ([]AnyRecord, error) {
	answers, err := r.resolveAnswers(ctx, name, rrtype, opts)
	if err != nil {
		return nil, err
	}
	out := make([]AnyRecord, 0, len(answers))
	for _, a := range answers {
		record := projectAny(rrtype, a)
		if record == nil {
			continue
		}
		out = append(out, AnyRecord{Type: rrtype, Record: record})
	}
	return out, nil
}

func projectAny(rrtype string, a doh.Answer) any {
	switch rrtype {
	case "A", "AAAA":
		if addr, ok := a.Data.(string); ok {
			return AddressTTL{Address: addr, TTL: a.TTL}
		}
	case "CNAME", "NS", "PTR":
		if s, ok := a.Data.(string); ok {
			return s
		}
	case "MX":
		if d, ok := a.Data.(doh.DataMX); ok {
			return MX{Exchange: d.Exchange, Priority: d.Preference}
		}
	case "NAPTR":
		if d, ok := a.Data.(doh.DataNAPTR); ok {
			return NAPTR{
				Flags:       d.Flags,
				Service:     d.Service,
				Regexp:      d.Regexp,
				Replacement: d.Replacement,
				Order:       d.Order,
				Preference:  d.Preference,
			}
		}
	case "SOA":
		if d, ok := a.Data.(doh.DataSOA); ok {
			return &SOA{
				NSName:     d.MName,
				Hostmaster: d.RName,
				Serial:     d.Serial,
				Refresh:    d.Refresh,
				Retry:      d.Retry,
				Expire:     d.Expire,
				MinTTL:     d.Minimum,
			}
		}
	case "SRV":
		if d, ok := a.Data.(doh.DataSRV); ok {
			return SRV{Name: d.Target, Port: d.Port, Priority: d.Priority, Weight: d.Weight}
		}
	case "TXT":
		if d, ok := a.Data.(doh.DataTXT); ok {
			entries := make([]string, len(d))
			for i, e := range d {
				entries[i] = string(e)
			}
			return entries
		}
	}
	return nil
}
