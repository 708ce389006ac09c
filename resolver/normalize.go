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
	"encoding/base64"
	"encoding/binary"
	"strconv"

	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// AddressTTL is an A or AAAA answer with its remaining TTL.
type AddressTTL struct {
	Address string `json:"address"`
	TTL     uint32 `json:"ttl"`
}

// MX is a mail exchange answer.
type MX struct {
	Exchange string `json:"exchange"`
	Priority uint16 `json:"priority"`
}

// SRV is a service locator answer.
type SRV struct {
	Name     string `json:"name"`
	Port     uint16 `json:"port"`
	Priority uint16 `json:"priority"`
	Weight   uint16 `json:"weight"`
}

// SOA is a start-of-authority answer.
type SOA struct {
	NSName     string `json:"nsname"`
	Hostmaster string `json:"hostmaster"`
	Serial     uint32 `json:"serial"`
	Refresh    uint32 `json:"refresh"`
	Retry      uint32 `json:"retry"`
	Expire     uint32 `json:"expire"`
	MinTTL     uint32 `json:"minttl"`
}

// CAA is a certification-authority-authorization answer.
type CAA struct {
	Critical uint8  `json:"critical"`
	Tag      string `json:"tag"`
	Value    string `json:"value"`
}

// NAPTR is a naming-authority-pointer answer.
type NAPTR struct {
	Flags       string `json:"flags"`
	Service     string `json:"service"`
	Regexp      string `json:"regexp"`
	Replacement string `json:"replacement"`
	Order       uint16 `json:"order"`
	Preference  uint16 `json:"preference"`
}

// CERT is a certificate record answer. Certificate carries the certificate
// bytes in base64.
type CERT struct {
	Name            string `json:"name"`
	TTL             uint32 `json:"ttl"`
	CertificateType string `json:"certificateType"`
	KeyTag          uint16 `json:"keyTag"`
	Algorithm       uint8  `json:"algorithm"`
	Certificate     string `json:"certificate"`
}

// TLSA is a TLSA answer. Certificate carries the raw certificate association
// data.
type TLSA struct {
	Name         string `json:"name"`
	TTL          uint32 `json:"ttl"`
	Usage        uint8  `json:"usage"`
	Selector     uint8  `json:"selector"`
	MatchingType uint8  `json:"matchingType"`
	Certificate  []byte `json:"certificate"`
}

// certTypeNames maps the CERT record's certificate type field to its mnemonic,
// per the IANA certificate types registry.
var certTypeNames = map[uint16]string{
	1:   "PKIX",
	2:   "SPKI",
	3:   "PGP",
	4:   "IPKIX",
	5:   "ISPKI",
	6:   "IPGP",
	7:   "ACPKIX",
	8:   "IACPKIX",
	253: "URI",
	254: "OID",
}

// ResolveA resolves IPv4 addresses for name.
func (r *Resolver) ResolveA(ctx context.Context, name string, opts *ResolveOptions) ([]string, error) {
	answers, err := r.resolveAddresses(ctx, name, "A", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	return addressesOnly(answers), nil
}

// ResolveAWithTTL resolves IPv4 addresses with their remaining TTLs.
func (r *Resolver) ResolveAWithTTL(ctx context.Context, name string, opts *ResolveOptions) ([]AddressTTL, error) {
	return r.resolveAddresses(ctx, name, "A", opts.orEmpty())
}

// ResolveAAAA resolves IPv6 addresses for name.
func (r *Resolver) ResolveAAAA(ctx context.Context, name string, opts *ResolveOptions) ([]string, error) {
	answers, err := r.resolveAddresses(ctx, name, "AAAA", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	return addressesOnly(answers), nil
}

// ResolveAAAAWithTTL resolves IPv6 addresses with their remaining TTLs.
func (r *Resolver) ResolveAAAAWithTTL(ctx context.Context, name string, opts *ResolveOptions) ([]AddressTTL, error) {
	return r.resolveAddresses(ctx, name, "AAAA", opts.orEmpty())
}

func (r *Resolver) resolveAddresses(ctx context.Context, name, rrtype string, opts ResolveOptions) ([]AddressTTL, error) {
	answers, err := r.resolveAnswers(ctx, name, rrtype, opts)
	if err != nil {
		return nil, err
	}
	out := make([]AddressTTL, 0, len(answers))
	for _, a := range answers {
		if addr, ok := a.Data.(string); ok {
			out = append(out, AddressTTL{Address: addr, TTL: a.TTL})
		}
	}
	return out, nil
}

func addressesOnly(answers []AddressTTL) []string {
	out := make([]string, len(answers))
	for i, a := range answers {
		out[i] = a.Address
	}
	return out
}

// ResolveCNAME resolves canonical names for name.
func (r *Resolver) ResolveCNAME(ctx context.Context, name string, opts *ResolveOptions) ([]string, error) {
	return r.resolveStrings(ctx, name, "CNAME", opts.orEmpty())
}

// ResolveNS resolves name server names for name.
func (r *Resolver) ResolveNS(ctx context.Context, name string, opts *ResolveOptions) ([]string, error) {
	return r.resolveStrings(ctx, name, "NS", opts.orEmpty())
}

// ResolvePTR resolves pointer targets for name.
func (r *Resolver) ResolvePTR(ctx context.Context, name string, opts *ResolveOptions) ([]string, error) {
	return r.resolveStrings(ctx, name, "PTR", opts.orEmpty())
}

func (r *Resolver) resolveStrings(ctx context.Context, name, rrtype string, opts ResolveOptions) ([]string, error) {
	answers, err := r.resolveAnswers(ctx, name, rrtype, opts)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		if s, ok := a.Data.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// ResolveMX resolves mail exchanges for name.
func (r *Resolver) ResolveMX(ctx context.Context, name string, opts *ResolveOptions) ([]MX, error) {
	answers, err := r.resolveAnswers(ctx, name, "MX", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([]MX, 0, len(answers))
	for _, a := range answers {
		if d, ok := a.Data.(doh.DataMX); ok {
			out = append(out, MX{Exchange: d.Exchange, Priority: d.Preference})
		}
	}
	return out, nil
}

// ResolveTXT resolves text records for name. Each element is one answer's
// character strings, UTF-8 decoded; a single-string answer is still a
// one-element slice.
func (r *Resolver) ResolveTXT(ctx context.Context, name string, opts *ResolveOptions) ([][]string, error) {
	answers, err := r.resolveAnswers(ctx, name, "TXT", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(answers))
	for _, a := range answers {
		d, ok := a.Data.(doh.DataTXT)
		if !ok {
			continue
		}
		entries := make([]string, len(d))
		for i, e := range d {
			entries[i] = string(e)
		}
		out = append(out, entries)
	}
	return out, nil
}

// ResolveSRV resolves service locators for name.
func (r *Resolver) ResolveSRV(ctx context.Context, name string, opts *ResolveOptions) ([]SRV, error) {
	answers, err := r.resolveAnswers(ctx, name, "SRV", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([]SRV, 0, len(answers))
	for _, a := range answers {
		if d, ok := a.Data.(doh.DataSRV); ok {
			out = append(out, SRV{Name: d.Target, Port: d.Port, Priority: d.Priority, Weight: d.Weight})
		}
	}
	return out, nil
}

// ResolveSOA resolves the start-of-authority record of name. When the
// response carries several, the first is returned.
func (r *Resolver) ResolveSOA(ctx context.Context, name string, opts *ResolveOptions) (*SOA, error) {
	answers, err := r.resolveAnswers(ctx, name, "SOA", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		if d, ok := a.Data.(doh.DataSOA); ok {
			return &SOA{
				NSName:     d.MName,
				Hostmaster: d.RName,
				Serial:     d.Serial,
				Refresh:    d.Refresh,
				Retry:      d.Retry,
				Expire:     d.Expire,
				MinTTL:     d.Minimum,
			}, nil
		}
	}
	return nil, newDNSError(CodeNoData, "querySoa", name)
}

// ResolveCAA resolves certification authority authorizations for name.
func (r *Resolver) ResolveCAA(ctx context.Context, name string, opts *ResolveOptions) ([]CAA, error) {
	answers, err := r.resolveAnswers(ctx, name, "CAA", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([]CAA, 0, len(answers))
	for _, a := range answers {
		if d, ok := a.Data.(doh.DataCAA); ok {
			out = append(out, CAA{Critical: d.Flags, Tag: d.Tag, Value: d.Value})
		}
	}
	return out, nil
}

// ResolveNAPTR resolves naming authority pointers for name.
func (r *Resolver) ResolveNAPTR(ctx context.Context, name string, opts *ResolveOptions) ([]NAPTR, error) {
	answers, err := r.resolveAnswers(ctx, name, "NAPTR", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([]NAPTR, 0, len(answers))
	for _, a := range answers {
		if d, ok := a.Data.(doh.DataNAPTR); ok {
			out = append(out, NAPTR{
				Flags:       d.Flags,
				Service:     d.Service,
				Regexp:      d.Regexp,
				Replacement: d.Replacement,
				Order:       d.Order,
				Preference:  d.Preference,
			})
		}
	}
	return out, nil
}

// ResolveCERT resolves certificate records for name. The rdata blob is two
// bytes of certificate type, two bytes of key tag and one byte of algorithm,
// followed by the certificate itself.
func (r *Resolver) ResolveCERT(ctx context.Context, name string, opts *ResolveOptions) ([]CERT, error) {
	answers, err := r.resolveAnswers(ctx, name, "CERT", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([]CERT, 0, len(answers))
	for _, a := range answers {
		blob, ok := a.Data.(doh.Bytes)
		if !ok || len(blob) < 5 {
			continue
		}
		certType := binary.BigEndian.Uint16(blob[0:2])
		typeName, ok := certTypeNames[certType]
		if !ok {
			typeName = strconv.Itoa(int(certType))
		}
		out = append(out, CERT{
			Name:            a.Name,
			TTL:             a.TTL,
			CertificateType: typeName,
			KeyTag:          binary.BigEndian.Uint16(blob[2:4]),
			Algorithm:       blob[4],
			Certificate:     base64.StdEncoding.EncodeToString(blob[5:]),
		})
	}
	return out, nil
}

// ResolveTLSA resolves TLSA records for name. The rdata blob is one byte each
// of usage, selector and matching type, followed by the certificate
// association data.
func (r *Resolver) ResolveTLSA(ctx context.Context, name string, opts *ResolveOptions) ([]TLSA, error) {
	answers, err := r.resolveAnswers(ctx, name, "TLSA", opts.orEmpty())
	if err != nil {
		return nil, err
	}
	out := make([]TLSA, 0, len(answers))
	for _, a := range answers {
		blob, ok := a.Data.(doh.Bytes)
		if !ok || len(blob) < 3 {
			continue
		}
		cert := make([]byte, len(blob)-3)
		copy(cert, blob[3:])
		out = append(out, TLSA{
			Name:         a.Name,
			TTL:          a.TTL,
			Usage:        blob[0],
			Selector:     blob[1],
			MatchingType: blob[2],
			Certificate:  cert,
		})
	}
	return out, nil
}
