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
Package doh implements the wire layer of [DNS-over-HTTPS]: packing query messages,
executing single RFC 8484 exchanges over HTTP, and decoding response messages into
the structured [Response] form the resolver caches and projects.

Message encoding and decoding is built on [github.com/miekg/dns]; the HTTP exchange
is one request per [Transport.RoundTrip] call against one server, with connection
reuse left to the underlying HTTP client.

[DNS-over-HTTPS]: https://datatracker.ietf.org/doc/html/rfc8484
*/
package doh
