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
	"time"

	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// query runs one DNS question against the rotation: servers strictly in
// order, up to Tries attempts each with doubling deadlines. It returns the
// decoded response of the first successful exchange.
//
// An authoritative not-found from any server terminates the query at once.
// Servers that produced only errors are demoted after the rotation completes
// when smart rotation is on.
func (r *Resolver) query(ctx context.Context, name, rrtype, ecsSubnet string) (*doh.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var id uint16
	if r.opts.QueryID != nil {
		id = r.opts.QueryID()
	}
	packet, err := doh.Pack(id, name, typeCode(rrtype), ecsSubnet)
	if err != nil {
		return nil, &DNSError{Message: err.Error(), Code: CodeBadName, Hostname: name}
	}

	rt := r.roundTripper()
	servers := r.GetServers()
	var buffer []byte
	var queryErrs []error
	var failed []string

rotation:
	for _, server := range servers {
		serverURL := doh.EndpointURL(r.opts.Protocol, server)
		var serverErrs []error

		for i := 0; i < r.opts.Tries; i++ {
			if err := ctx.Err(); err != nil {
				serverErrs = append(serverErrs, err)
				break
			}
			attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout<<i)
			start := time.Now()
			body, err := rt.RoundTrip(attemptCtx, serverURL, packet)
			cancel()
			if err == nil {
				r.log.DebugContext(ctx, "doh exchange succeeded",
					"server", server, "name", name, "rrtype", rrtype,
					"attempt", i, "elapsed", time.Since(start))
				buffer = body
				break rotation
			}
			r.log.DebugContext(ctx, "doh exchange failed",
				"server", server, "name", name, "rrtype", rrtype,
				"attempt", i, "error", err)

			code := classify(err)
			if code == CodeNotFound {
				// Authoritative negative: no other server can answer differently.
				if r.opts.ReturnHTTPErrors {
					var httpErr *doh.HTTPError
					if errors.As(err, &httpErr) {
						return nil, httpErr
					}
				}
				return nil, &DNSError{Message: err.Error(), Code: CodeNotFound, Hostname: name, Errors: []error{err}}
			}
			serverErrs = append(serverErrs, err)
			if !retryable(err) {
				break
			}
		}

		if len(serverErrs) > 0 {
			queryErrs = append(queryErrs, serverErrs...)
			failed = append(failed, server)
		}
	}

	r.demote(failed)

	if buffer == nil {
		if len(queryErrs) == 0 {
			return nil, newDNSError(CodeCancelled, "", name)
		}
		if r.opts.ReturnHTTPErrors && len(queryErrs) == 1 {
			var httpErr *doh.HTTPError
			if errors.As(queryErrs[0], &httpErr) {
				return nil, httpErr
			}
		}
		return nil, combineErrors(queryErrs)
	}

	resp, err := doh.Unpack(buffer)
	if err != nil {
		return nil, &DNSError{Message: err.Error(), Code: CodeBadResp, Hostname: name, Errors: []error{err}}
	}
	return resp, nil
}

// demote moves the failed servers, in failure order, behind the rest of the
// rotation. Demotion never promotes and needs at least two configured servers.
func (r *Resolver) demote(failed []string) {
	if !r.opts.SmartRotate || len(failed) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.servers) < 2 {
		return
	}
	isFailed := make(map[string]bool, len(failed))
	for _, s := range failed {
		isFailed[s] = true
	}
	kept := make([]string, 0, len(r.servers))
	demoted := make([]string, 0, len(failed))
	for _, s := range r.servers {
		if isFailed[s] {
			demoted = append(demoted, s)
		} else {
			kept = append(kept, s)
		}
	}
	if len(demoted) == 0 {
		return
	}
	r.log.Debug("demoting failed servers", "servers", demoted)
	r.servers = append(kept, demoted...)
}
