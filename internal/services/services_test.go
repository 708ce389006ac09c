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

package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	require.Equal(t, "http", Name(80))
	require.Equal(t, "https", Name(443))
	require.Equal(t, "domain", Name(53))
	require.Equal(t, "tftp", Name(69), "UDP-only services are still known")
	require.Equal(t, "shell", Name(514), "TCP name wins over the UDP name")
	require.Equal(t, "", Name(61234))
}
