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
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// Maximum DNS message size. Messages over a stream transport carry a 16-bit length.
const maxMsgSize = 65535

// Accept answers up to this size without truncation. RFC 6891.
const ednsBufferSize = 4096

// Pack encodes one DNS query message. name is converted to its ASCII (IDNA) form
// before packing. ecsSubnet, when non-empty, is a CIDR prefix (for example
// "192.0.2.0/24") carried as an EDNS Client Subnet option per RFC 7871.
func Pack(id uint16, name string, qtype uint16, ecsSubnet string) ([]byte, error) {
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		// Accept already-ASCII names that the strict lookup profile rejects
		// (underscores in service labels, trailing dots).
		ascii = name
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(ascii), qtype)
	m.Id = id
	m.RecursionDesired = true

	opt := &dns.OPT{
		Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT},
	}
	opt.SetUDPSize(ednsBufferSize)
	if ecsSubnet != "" {
		ecs, err := ecsOption(ecsSubnet)
		if err != nil {
			return nil, err
		}
		opt.Option = append(opt.Option, ecs)
	}
	m.Extra = append(m.Extra, opt)

	packet, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack DNS query: %w", err)
	}
	if len(packet) > maxMsgSize {
		return nil, fmt.Errorf("message too large: %v bytes", len(packet))
	}
	return packet, nil
}

func ecsOption(subnet string) (*dns.EDNS0_SUBNET, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		// A bare address is treated as a full-length prefix.
		addr, addrErr := netip.ParseAddr(subnet)
		if addrErr != nil {
			return nil, fmt.Errorf("invalid ECS subnet %q: %w", subnet, err)
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}
	ecs := &dns.EDNS0_SUBNET{
		Code:          dns.EDNS0SUBNET,
		SourceNetmask: uint8(prefix.Bits()),
		Address:       net.IP(prefix.Addr().AsSlice()),
	}
	if prefix.Addr().Is4() {
		ecs.Family = 1
	} else {
		ecs.Family = 2
	}
	return ecs, nil
}

// Unpack decodes a raw DNS response message into a [Response].
func Unpack(packet []byte) (*Response, error) {
	m := new(dns.Msg)
	if err := m.Unpack(packet); err != nil {
		return nil, fmt.Errorf("failed to unpack DNS response: %w", err)
	}
	return ResponseFromMsg(m), nil
}

// Response is the structured form of a decoded DNS response message. It is the
// value the resolver caches, so it must survive a JSON round trip (see the data
// hydration rules on [Answer]).
type Response struct {
	ID        uint16   `json:"id"`
	Rcode     int      `json:"rcode"`
	Truncated bool     `json:"tc"`
	RD        bool     `json:"rd"`
	RA        bool     `json:"ra"`
	AD        bool     `json:"ad"`
	CD        bool     `json:"cd"`
	Answers   []Answer `json:"answers"`
}

// Answer is one resource record of a [Response], with its data projected into a
// type-dependent shape (see the Data* types).
type Answer struct {
	Name string `json:"name"`
	Type string `json:"type"`
	TTL  uint32 `json:"ttl"`
	Data any    `json:"data"`
}

// DataMX is the data of an MX answer.
type DataMX struct {
	Exchange   string `json:"exchange"`
	Preference uint16 `json:"preference"`
}

// DataSOA is the data of a SOA answer.
type DataSOA struct {
	MName   string `json:"mname"`
	RName   string `json:"rname"`
	Serial  uint32 `json:"serial"`
	Refresh uint32 `json:"refresh"`
	Retry   uint32 `json:"retry"`
	Expire  uint32 `json:"expire"`
	Minimum uint32 `json:"minimum"`
}

// DataSRV is the data of an SRV answer.
type DataSRV struct {
	Target   string `json:"target"`
	Port     uint16 `json:"port"`
	Priority uint16 `json:"priority"`
	Weight   uint16 `json:"weight"`
}

// DataCAA is the data of a CAA answer.
type DataCAA struct {
	Flags uint8  `json:"flags"`
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// DataNAPTR is the data of a NAPTR answer.
type DataNAPTR struct {
	Order       uint16 `json:"order"`
	Preference  uint16 `json:"preference"`
	Flags       string `json:"flags"`
	Service     string `json:"service"`
	Regexp      string `json:"regexp"`
	Replacement string `json:"replacement"`
}

// ResponseFromMsg converts a decoded [dns.Msg] into a [Response].
func ResponseFromMsg(m *dns.Msg) *Response {
	resp := &Response{
		ID:        m.Id,
		Rcode:     m.Rcode,
		Truncated: m.Truncated,
		RD:        m.RecursionDesired,
		RA:        m.RecursionAvailable,
		AD:        m.AuthenticatedData,
		CD:        m.CheckingDisabled,
	}
	for _, rr := range m.Answer {
		hdr := rr.Header()
		ans := Answer{
			Name: strings.TrimSuffix(hdr.Name, "."),
			Type: dns.TypeToString[hdr.Rrtype],
			TTL:  hdr.Ttl,
		}
		switch rr := rr.(type) {
		case *dns.A:
			ans.Data = rr.A.String()
		case *dns.AAAA:
			ans.Data = rr.AAAA.String()
		case *dns.CNAME:
			ans.Data = strings.TrimSuffix(rr.Target, ".")
		case *dns.NS:
			ans.Data = strings.TrimSuffix(rr.Ns, ".")
		case *dns.PTR:
			ans.Data = strings.TrimSuffix(rr.Ptr, ".")
		case *dns.MX:
			ans.Data = DataMX{Exchange: strings.TrimSuffix(rr.Mx, "."), Preference: rr.Preference}
		case *dns.SOA:
			ans.Data = DataSOA{
				MName:   strings.TrimSuffix(rr.Ns, "."),
				RName:   strings.TrimSuffix(rr.Mbox, "."),
				Serial:  rr.Serial,
				Refresh: rr.Refresh,
				Retry:   rr.Retry,
				Expire:  rr.Expire,
				Minimum: rr.Minttl,
			}
		case *dns.SRV:
			ans.Data = DataSRV{
				Target:   strings.TrimSuffix(rr.Target, "."),
				Port:     rr.Port,
				Priority: rr.Priority,
				Weight:   rr.Weight,
			}
		case *dns.CAA:
			ans.Data = DataCAA{Flags: rr.Flag, Tag: rr.Tag, Value: rr.Value}
		case *dns.NAPTR:
			ans.Data = DataNAPTR{
				Order:       rr.Order,
				Preference:  rr.Preference,
				Flags:       rr.Flags,
				Service:     rr.Service,
				Regexp:      rr.Regexp,
				Replacement: strings.TrimSuffix(rr.Replacement, "."),
			}
		case *dns.TXT:
			entries := make([][]byte, 0, len(rr.Txt))
			for _, s := range rr.Txt {
				entries = append(entries, []byte(s))
			}
			ans.Data = DataTXT(entries)
		case *dns.CERT:
			ans.Data = Bytes(packCERT(rr))
		case *dns.TLSA:
			ans.Data = Bytes(packTLSA(rr))
		default:
			// Unhandled rdata is carried as its presentation string.
			ans.Data = strings.TrimPrefix(rr.String(), hdr.String())
		}
		resp.Answers = append(resp.Answers, ans)
	}
	return resp
}

// packCERT reassembles the CERT rdata wire form: 2 bytes certificate type,
// 2 bytes key tag, 1 byte algorithm, then the certificate bytes.
func packCERT(rr *dns.CERT) []byte {
	cert, err := base64.StdEncoding.DecodeString(rr.Certificate)
	if err != nil {
		cert = nil
	}
	blob := make([]byte, 5, 5+len(cert))
	binary.BigEndian.PutUint16(blob[0:2], rr.Type)
	binary.BigEndian.PutUint16(blob[2:4], rr.KeyTag)
	blob[4] = rr.Algorithm
	return append(blob, cert...)
}

// packTLSA reassembles the TLSA rdata wire form: 1 byte usage, 1 byte selector,
// 1 byte matching type, then the certificate association data.
func packTLSA(rr *dns.TLSA) []byte {
	cert, err := hex.DecodeString(rr.Certificate)
	if err != nil {
		cert = nil
	}
	blob := make([]byte, 3, 3+len(cert))
	blob[0] = rr.Usage
	blob[1] = rr.Selector
	blob[2] = rr.MatchingType
	return append(blob, cert...)
}

// RcodeToString returns the textual form of a response code, like "NXDOMAIN".
func RcodeToString(rcode int) string {
	if s, ok := dns.RcodeToString[rcode]; ok {
		return s
	}
	return "RCODE" + strconv.Itoa(rcode)
}
