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
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/Jigsaw-Code/doh-resolver/doh"
)

func aaaaRecord(name string, ttl uint32, ip string) dns.RR {
	return &dns.AAAA{
		Hdr:  dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl},
		AAAA: net.ParseIP(ip),
	}
}

// answerByType serves each query from the per-qtype answer table; question
// types missing from the table get an empty NOERROR response.
func answerByType(t *testing.T, answers map[uint16][]dns.RR) doh.RoundTripFunc {
	return func(ctx context.Context, serverURL string, query []byte) ([]byte, error) {
		q := new(dns.Msg)
		if err := q.Unpack(query); err != nil {
			t.Error("malformed query packet:", err)
			return nil, err
		}
		reply := new(dns.Msg)
		reply.SetReply(q)
		reply.Answer = answers[q.Question[0].Qtype]
		packet, err := reply.Pack()
		if err != nil {
			t.Error("packing reply:", err)
			return nil, err
		}
		return packet, nil
	}
}

func TestLookupRootIsNotFound(t *testing.T) {
	r := newTestResolver(t, &Options{RoundTripper: failingRoundTripper(t)})
	_, err := r.Lookup(context.Background(), ".", nil)
	require.ErrorIs(t, err, &DNSError{Code: CodeNotFound})
	var dnsErr *DNSError
	require.ErrorAs(t, err, &dnsErr)
	require.Equal(t, "getaddrinfo", dnsErr.Syscall)
}

func TestLookupArgumentValidation(t *testing.T) {
	r := newTestResolver(t, &Options{RoundTripper: failingRoundTripper(t)})

	t.Run("bad name", func(t *testing.T) {
		_, err := r.Lookup(context.Background(), "bad..name", nil)
		require.ErrorIs(t, err, &DNSError{Code: CodeBadName})
	})

	t.Run("bad family", func(t *testing.T) {
		_, err := r.Lookup(context.Background(), "example.com", &LookupOptions{Family: 5})
		require.ErrorIs(t, err, &DNSError{Code: CodeBadFamily})
	})

	t.Run("bad hints", func(t *testing.T) {
		_, err := r.Lookup(context.Background(), "example.com", &LookupOptions{Hints: 1 << 6})
		require.ErrorIs(t, err, &DNSError{Code: CodeBadHints})
	})
}

func TestLookupIPLiterals(t *testing.T) {
	r := newTestResolver(t, &Options{RoundTripper: failingRoundTripper(t)})

	addrs, err := r.Lookup(context.Background(), "1.2.3.4", nil)
	require.NoError(t, err)
	require.Equal(t, []LookupAddr{{Address: "1.2.3.4", Family: 4}}, addrs)

	addrs, err = r.Lookup(context.Background(), "2606:4700:4700::1111", nil)
	require.NoError(t, err)
	require.Equal(t, []LookupAddr{{Address: "2606:4700:4700::1111", Family: 6}}, addrs)
}

func TestLookupLocalhostWithoutHostsFile(t *testing.T) {
	r := newTestResolver(t, &Options{RoundTripper: failingRoundTripper(t)})

	addrs, err := r.Lookup(context.Background(), "localhost", &LookupOptions{All: true})
	require.NoError(t, err)
	require.Equal(t, []LookupAddr{
		{Address: "127.0.0.1", Family: 4},
		{Address: "::1", Family: 6},
	}, addrs)
}

func TestLookupHostsFile(t *testing.T) {
	hosts := writeHosts(t, "10.0.0.5 myhost alias\nfd00::5 myhost\n")
	r := newTestResolver(t, &Options{
		HostsPath:    hosts,
		RoundTripper: failingRoundTripper(t),
	})

	addrs, err := r.Lookup(context.Background(), "MyHost.", &LookupOptions{All: true})
	require.NoError(t, err)
	require.Equal(t, []LookupAddr{
		{Address: "10.0.0.5", Family: 4},
		{Address: "fd00::5", Family: 6},
	}, addrs)

	t.Run("family filter", func(t *testing.T) {
		addrs, err := r.Lookup(context.Background(), "myhost", &LookupOptions{Family: 6, All: true})
		require.NoError(t, err)
		require.Equal(t, []LookupAddr{{Address: "fd00::5", Family: 6}}, addrs)
	})
}

func TestLookupQueriesBothFamilies(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DisableCache: true,
		RoundTripper: answerByType(t, map[uint16][]dns.RR{
			dns.TypeA:    {aRecord("example.com", 300, "1.2.3.4")},
			dns.TypeAAAA: {aaaaRecord("example.com", 300, "2606:4700:4700::1111")},
		}),
	})

	addrs, err := r.Lookup(context.Background(), "example.com", &LookupOptions{All: true})
	require.NoError(t, err)
	require.ElementsMatch(t, []LookupAddr{
		{Address: "1.2.3.4", Family: 4},
		{Address: "2606:4700:4700::1111", Family: 6},
	}, addrs)
}

func TestLookupFirstAddressOnly(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DisableCache: true,
		RoundTripper: answerByType(t, map[uint16][]dns.RR{
			dns.TypeA: {
				aRecord("example.com", 300, "1.2.3.4"),
				aRecord("example.com", 300, "5.6.7.8"),
			},
		}),
	})

	addrs, err := r.Lookup(context.Background(), "example.com", nil)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	require.Equal(t, LookupAddr{Address: "1.2.3.4", Family: 4}, addrs[0])
}

func TestLookupExplicitFamilySkipsOtherQuery(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DisableCache: true,
		RoundTripper: doh.RoundTripFunc(func(ctx context.Context, serverURL string, query []byte) ([]byte, error) {
			q := new(dns.Msg)
			require.NoError(t, q.Unpack(query))
			if q.Question[0].Qtype != dns.TypeAAAA {
				t.Errorf("unexpected qtype %d", q.Question[0].Qtype)
			}
			reply := new(dns.Msg)
			reply.SetReply(q)
			reply.Answer = []dns.RR{aaaaRecord("example.com", 300, "::1")}
			return reply.Pack()
		}),
	})

	addrs, err := r.Lookup(context.Background(), "example.com", &LookupOptions{Family: 6, All: true})
	require.NoError(t, err)
	require.Equal(t, []LookupAddr{{Address: "::1", Family: 6}}, addrs)
}

func TestLookupV4Mapped(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DisableCache: true,
		RoundTripper: answerByType(t, map[uint16][]dns.RR{
			dns.TypeA: {aRecord("example.com", 300, "1.2.3.4")},
		}),
	})

	addrs, err := r.Lookup(context.Background(), "example.com", &LookupOptions{
		Family: 6,
		Hints:  HintV4Mapped,
		All:    true,
	})
	require.NoError(t, err)
	require.Equal(t, []LookupAddr{{Address: "::ffff:1.2.3.4", Family: 6}}, addrs)
}

func TestLookupNoAddressesIsNODATA(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DisableCache: true,
		RoundTripper: answerByType(t, map[uint16][]dns.RR{}),
	})

	_, err := r.Lookup(context.Background(), "example.com", nil)
	require.ErrorIs(t, err, &DNSError{Code: CodeNoData})
	var dnsErr *DNSError
	require.ErrorAs(t, err, &dnsErr)
	require.Equal(t, "getaddrinfo", dnsErr.Syscall)
}

func TestLookupNXDOMAINBecomesNotFound(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DisableCache: true,
		RoundTripper: doh.RoundTripFunc(func(ctx context.Context, serverURL string, query []byte) ([]byte, error) {
			q := new(dns.Msg)
			require.NoError(t, q.Unpack(query))
			reply := new(dns.Msg)
			reply.SetRcode(q, dns.RcodeNameError)
			return reply.Pack()
		}),
	})

	_, err := r.Lookup(context.Background(), "no-such-host.example", nil)
	require.ErrorIs(t, err, &DNSError{Code: CodeNotFound})
	var dnsErr *DNSError
	require.ErrorAs(t, err, &dnsErr)
	require.Equal(t, "getaddrinfo", dnsErr.Syscall)
	require.Equal(t, "no-such-host.example", dnsErr.Hostname)
}

func TestLookupIPv4FirstOrder(t *testing.T) {
	r := newTestResolver(t, &Options{
		Servers:      []string{"server.test"},
		DNSOrder:     OrderIPv4First,
		DisableCache: true,
		RoundTripper: answerByType(t, map[uint16][]dns.RR{
			dns.TypeA:    {aRecord("example.com", 300, "1.2.3.4")},
			dns.TypeAAAA: {aaaaRecord("example.com", 300, "::1")},
		}),
	})

	addrs, err := r.Lookup(context.Background(), "example.com", &LookupOptions{All: true})
	require.NoError(t, err)
	require.Equal(t, 4, addrs[0].Family)

	t.Run("verbatim wins", func(t *testing.T) {
		addrs, err := r.Lookup(context.Background(), "example.com", &LookupOptions{All: true, Verbatim: true})
		require.NoError(t, err)
		require.Len(t, addrs, 2)
	})
}
