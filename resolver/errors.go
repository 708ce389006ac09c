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
	"net"
	"strings"
	"syscall"

	"github.com/miekg/dns"

	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// Error codes produced by the resolver. They mirror the platform resolver's
// taxonomy; finer-grained transport failures are folded into this set.
const (
	CodeFormErr     = "FORMERR"
	CodeServFail    = "SERVFAIL"
	CodeNotFound    = "NOTFOUND"
	CodeNotImp      = "NOTIMP"
	CodeRefused     = "REFUSED"
	CodeNoData      = "NODATA"
	CodeBadResp     = "BADRESP"
	CodeBadName     = "BADNAME"
	CodeBadFamily   = "BADFAMILY"
	CodeBadFlags    = "BADFLAGS"
	CodeBadHints    = "BADHINTS"
	CodeTimeout     = "TIMEOUT"
	CodeConnRefused = "CONNREFUSED"
	CodeCancelled   = "CANCELLED"
	CodeInval       = "EINVAL"

	// Argument validation codes.
	CodeInvalidArgType  = "ERR_INVALID_ARG_TYPE"
	CodeInvalidArgValue = "ERR_INVALID_ARG_VALUE"
	CodeMissingArgs     = "ERR_MISSING_ARGS"
	CodeBadPort         = "ERR_SOCKET_BAD_PORT"
)

// DNSError is the error type every resolver operation surfaces. Code is drawn
// from the taxonomy above; Syscall identifies the failing operation ("queryTxt",
// "getaddrinfo", ...); Errors holds the per-server parts of a combined failure.
type DNSError struct {
	Message  string
	Code     string
	Syscall  string
	Hostname string
	Errno    int
	Errors   []error
}

var _ error = (*DNSError)(nil)

func (e *DNSError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	parts := make([]string, 0, 3)
	if e.Syscall != "" {
		parts = append(parts, e.Syscall)
	}
	parts = append(parts, e.Code)
	if e.Hostname != "" {
		parts = append(parts, e.Hostname)
	}
	return strings.Join(parts, " ")
}

// Is reports code equality, so callers can match with a bare &DNSError{Code: ...}.
func (e *DNSError) Is(target error) bool {
	var t *DNSError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Unwrap exposes the combined per-server errors.
func (e *DNSError) Unwrap() []error {
	return e.Errors
}

func newDNSError(code, syscall, hostname string) *DNSError {
	return &DNSError{Code: code, Syscall: syscall, Hostname: hostname}
}

// codeForRcode maps a DNS response code onto the error taxonomy.
func codeForRcode(rcode int) string {
	switch rcode {
	case dns.RcodeFormatError:
		return CodeFormErr
	case dns.RcodeServerFailure:
		return CodeServFail
	case dns.RcodeNameError:
		return CodeNotFound
	case dns.RcodeNotImplemented:
		return CodeNotImp
	case dns.RcodeRefused:
		return CodeRefused
	}
	return CodeBadResp
}

// retryableStatuses are HTTP statuses worth another attempt against the same
// server with a doubled deadline.
var retryableStatuses = map[int]bool{
	408: true, 413: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
	521: true, 522: true, 524: true,
}

// classify folds a transport-level error into the DNS error taxonomy.
func classify(err error) string {
	var httpErr *doh.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 404:
			return CodeNotFound
		case retryableStatuses[httpErr.StatusCode]:
			return CodeTimeout
		}
		return CodeBadResp
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		// The server's own hostname does not resolve: authoritative negative.
		return CodeNotFound
	}

	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ENETDOWN),
		errors.Is(err, syscall.ENETRESET),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EADDRINUSE):
		return CodeConnRefused
	case errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return CodeTimeout
	case errors.Is(err, syscall.ECONNABORTED):
		return CodeCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeBadResp
}

// retryable reports whether the attempt should be repeated against the same
// server: retryable HTTP statuses plus network and timeout failure classes.
func retryable(err error) bool {
	var httpErr *doh.HTTPError
	if errors.As(err, &httpErr) {
		return retryableStatuses[httpErr.StatusCode]
	}
	switch classify(err) {
	case CodeTimeout, CodeConnRefused:
		return true
	}
	return false
}

// combineErrors merges the per-server errors of a failed query into one
// [DNSError]: deduplicated messages joined with "; ", the shared code preserved
// when every part classifies identically, [CodeBadResp] otherwise.
func combineErrors(errs []error) *DNSError {
	if len(errs) == 1 {
		var d *DNSError
		if errors.As(errs[0], &d) {
			return d
		}
		return &DNSError{Message: errs[0].Error(), Code: classify(errs[0]), Errors: errs}
	}

	seen := make(map[string]bool)
	var messages []string
	sharedCode := ""
	uniform := true
	for i, err := range errs {
		if msg := err.Error(); !seen[msg] {
			seen[msg] = true
			messages = append(messages, msg)
		}
		code := classify(err)
		if i == 0 {
			sharedCode = code
		} else if code != sharedCode {
			uniform = false
		}
	}
	if !uniform {
		sharedCode = CodeBadResp
	}
	return &DNSError{
		Message: strings.Join(messages, "; "),
		Code:    sharedCode,
		Errors:  errs,
	}
}
