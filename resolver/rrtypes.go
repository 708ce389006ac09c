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
	"strings"

	"github.com/miekg/dns"
)

// anyTypes is the fan-out vector of [Resolver.ResolveAny]. Output order follows
// this order regardless of which child query settles first.
var anyTypes = []string{"A", "AAAA", "CNAME", "MX", "NAPTR", "NS", "PTR", "SOA", "SRV", "TXT"}

// typeCode returns the numeric record type for an IANA type name, or 0 when
// the name is not in the registry.
func typeCode(rrtype string) uint16 {
	return dns.StringToType[strings.ToUpper(rrtype)]
}

// titleCase renders an rrtype name the way pseudo-syscall labels want it:
// "AAAA" becomes "Aaaa", "TXT" becomes "Txt".
func titleCase(rrtype string) string {
	if rrtype == "" {
		return ""
	}
	return strings.ToUpper(rrtype[:1]) + strings.ToLower(rrtype[1:])
}

// validateName rejects names the resolver never puts on the wire: empty names,
// names with a leading dot and names with consecutive dots. The root name "."
// is allowed here; lookup maps it to an authoritative not-found itself.
func validateName(name string) bool {
	if name == "." {
		return true
	}
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return false
	}
	return true
}
