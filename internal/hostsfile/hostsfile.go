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

// Package hostsfile reads the platform hosts database into a static rule list.
// The file is read once; there is no hot-reload.
package hostsfile

import (
	"bufio"
	"net/netip"
	"os"
	"runtime"
	"strings"
)

// Rule is one hosts entry: an IP address and the names it answers for.
// The first name is the canonical one, the rest are aliases.
type Rule struct {
	Addr  netip.Addr
	Names []string
}

// Path returns the location of the hosts database on this platform.
func Path() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return root + `\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

// Load parses the hosts file at path. A missing or unreadable file yields an
// empty rule list, matching the platform resolver's tolerance.
func Load(path string) []Rule {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []Rule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		names := make([]string, 0, len(fields)-1)
		for _, name := range fields[1:] {
			names = append(names, strings.ToLower(name))
		}
		rules = append(rules, Rule{Addr: addr, Names: names})
	}
	return rules
}
