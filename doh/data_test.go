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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesUnmarshal(t *testing.T) {
	for _, tc := range []struct {
		name string
		json string
		want Bytes
	}{
		{"base64 string", `"3q2+7w=="`, Bytes{0xde, 0xad, 0xbe, 0xef}},
		{"int array", `[222, 173, 190, 239]`, Bytes{0xde, 0xad, 0xbe, 0xef}},
		{"buffer envelope", `{"type":"Buffer","data":[222,173,190,239]}`, Bytes{0xde, 0xad, 0xbe, 0xef}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var b Bytes
			require.NoError(t, json.Unmarshal([]byte(tc.json), &b))
			require.Equal(t, tc.want, b)
		})
	}
}

func TestDataTXTRoundTrip(t *testing.T) {
	d := DataTXT{[]byte("v=spf1 ip4:127.0.0.1 -all")}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `["v=spf1 ip4:127.0.0.1 -all"]`, string(raw))

	var back DataTXT
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, d, back)
}

func TestDataTXTFromBufferEnvelope(t *testing.T) {
	raw := `[{"type":"Buffer","data":[104,105]}]`
	var d DataTXT
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.Equal(t, DataTXT{[]byte("hi")}, d)
}

func TestAnswerUnmarshalShapes(t *testing.T) {
	for _, tc := range []struct {
		name string
		json string
		want any
	}{
		{
			"A is a string",
			`{"name":"example.com","type":"A","ttl":60,"data":"1.2.3.4"}`,
			"1.2.3.4",
		},
		{
			"MX is structured",
			`{"name":"example.com","type":"MX","ttl":60,"data":{"exchange":"mx.example.com","preference":10}}`,
			DataMX{Exchange: "mx.example.com", Preference: 10},
		},
		{
			"TXT keeps entries",
			`{"name":"example.com","type":"TXT","ttl":60,"data":["a","b"]}`,
			DataTXT{[]byte("a"), []byte("b")},
		},
		{
			"TLSA is bytes",
			`{"name":"example.com","type":"TLSA","ttl":60,"data":"AwEB"}`,
			Bytes{3, 1, 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var a Answer
			require.NoError(t, json.Unmarshal([]byte(tc.json), &a))
			require.Equal(t, tc.want, a.Data)
		})
	}
}

func TestResponseJSONRoundTrip(t *testing.T) {
	resp := Response{
		ID:    7,
		Rcode: 0,
		RD:    true,
		RA:    true,
		Answers: []Answer{
			{Name: "example.com", Type: "TXT", TTL: 300, Data: DataTXT{[]byte("hello")}},
			{Name: "example.com", Type: "MX", TTL: 300, Data: DataMX{Exchange: "mx.example.com", Preference: 5}},
		},
	}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var back Response
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, resp, back)
}
