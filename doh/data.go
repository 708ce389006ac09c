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
	"encoding/json"
	"fmt"
)

// Bytes is a binary rdata blob (CERT and TLSA answers). It marshals to a base64
// JSON string and unmarshals from any of the shapes string-valued cache backends
// produce: a base64 string, an array of byte values, or a serialized buffer
// envelope {"type":"Buffer","data":[...]}.
type Bytes []byte

// DataTXT is the data of a TXT answer: one byte-string per character-string in
// the record. Entries marshal as plain JSON strings and unmarshal from plain
// strings, byte arrays, or buffer envelopes.
type DataTXT [][]byte

type bufferEnvelope struct {
	Type string `json:"type"`
	Raw  []int  `json:"data"`
}

func bytesFromJSON(raw json.RawMessage, textual bool) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if !textual {
			if b, err := base64.StdEncoding.DecodeString(s); err == nil {
				return b, nil
			}
		}
		return []byte(s), nil
	case '[':
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, err
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			b[i] = byte(v)
		}
		return b, nil
	case '{':
		var env bufferEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		if env.Type != "Buffer" {
			return nil, fmt.Errorf("unknown data envelope %q", env.Type)
		}
		b := make([]byte, len(env.Raw))
		for i, v := range env.Raw {
			b[i] = byte(v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported data encoding")
}

// UnmarshalJSON implements [json.Unmarshaler].
func (b *Bytes) UnmarshalJSON(raw []byte) error {
	decoded, err := bytesFromJSON(raw, false)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// MarshalJSON implements [json.Marshaler]. Entries are written as plain strings.
func (d DataTXT) MarshalJSON() ([]byte, error) {
	entries := make([]string, len(d))
	for i, e := range d {
		entries[i] = string(e)
	}
	return json.Marshal(entries)
}

// UnmarshalJSON implements [json.Unmarshaler].
func (d *DataTXT) UnmarshalJSON(raw []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return err
	}
	entries := make([][]byte, 0, len(parts))
	for _, part := range parts {
		b, err := bytesFromJSON(part, true)
		if err != nil {
			return err
		}
		entries = append(entries, b)
	}
	*d = entries
	return nil
}

// UnmarshalJSON implements [json.Unmarshaler]. The data shape is recovered from
// the answer's type so that a cached response projects identically to a live one.
func (a *Answer) UnmarshalJSON(raw []byte) error {
	var aux struct {
		Name string          `json:"name"`
		Type string          `json:"type"`
		TTL  uint32          `json:"ttl"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return err
	}
	a.Name, a.Type, a.TTL = aux.Name, aux.Type, aux.TTL
	if len(aux.Data) == 0 {
		a.Data = nil
		return nil
	}

	var err error
	switch aux.Type {
	case "A", "AAAA", "CNAME", "NS", "PTR":
		var s string
		err = json.Unmarshal(aux.Data, &s)
		a.Data = s
	case "MX":
		var d DataMX
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	case "SOA":
		var d DataSOA
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	case "SRV":
		var d DataSRV
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	case "CAA":
		var d DataCAA
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	case "NAPTR":
		var d DataNAPTR
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	case "TXT":
		var d DataTXT
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	case "CERT", "TLSA":
		var d Bytes
		err = json.Unmarshal(aux.Data, &d)
		a.Data = d
	default:
		var v any
		err = json.Unmarshal(aux.Data, &v)
		a.Data = v
	}
	return err
}
