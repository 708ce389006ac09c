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

/*
Package resolver offers a DNS stub resolver that answers over [DNS-over-HTTPS]
with the surface of a platform native resolver: per-record-type resolves
([Resolver.ResolveA], [Resolver.ResolveMX], ...), an ANY-style fan-out
([Resolver.ResolveAny]), hostname lookup with family selection and hints
([Resolver.Lookup]), plus [Resolver.Reverse] and [Resolver.LookupService].

A [Resolver] queries its configured servers in order, retrying each with
exponentially growing deadlines, optionally demoting failing servers to the
tail of the rotation. Successful responses are cached TTL-aware in any
[github.com/Jigsaw-Code/doh-resolver/dnscache.Store].

Every failure surfaces as a [DNSError] carrying a code from the platform
resolver taxonomy (NOTFOUND, SERVFAIL, TIMEOUT, ...), the failing pseudo
syscall ("queryTxt", "getaddrinfo", ...) and the hostname.

[DNS-over-HTTPS]: https://datatracker.ietf.org/doc/html/rfc8484
*/
package resolver
