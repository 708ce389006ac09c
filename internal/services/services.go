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

// Package services maps well-known ports to IANA service names.
// TCP entries take precedence over UDP, matching getnameinfo.
package services

// Name returns the service name registered for port, or "" if unknown.
func Name(port int) string {
	if name, ok := tcpNames[port]; ok {
		return name
	}
	if name, ok := udpNames[port]; ok {
		return name
	}
	return ""
}

var tcpNames = map[int]string{
	7:    "echo",
	9:    "discard",
	13:   "daytime",
	20:   "ftp-data",
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	37:   "time",
	43:   "whois",
	53:   "domain",
	70:   "gopher",
	79:   "finger",
	80:   "http",
	88:   "kerberos",
	110:  "pop3",
	113:  "auth",
	119:  "nntp",
	123:  "ntp",
	135:  "epmap",
	139:  "netbios-ssn",
	143:  "imap",
	179:  "bgp",
	194:  "irc",
	389:  "ldap",
	427:  "svrloc",
	443:  "https",
	445:  "microsoft-ds",
	465:  "submissions",
	514:  "shell",
	515:  "printer",
	543:  "klogin",
	544:  "kshell",
	548:  "afpovertcp",
	554:  "rtsp",
	587:  "submission",
	631:  "ipp",
	636:  "ldaps",
	853:  "domain-s",
	873:  "rsync",
	990:  "ftps",
	993:  "imaps",
	995:  "pop3s",
	1080: "socks",
	1433: "ms-sql-s",
	1723: "pptp",
	2049: "nfs",
	3128: "ndl-aas",
	3306: "mysql",
	3389: "ms-wbt-server",
	5060: "sip",
	5222: "xmpp-client",
	5432: "postgresql",
	5900: "rfb",
	6379: "redis",
	8080: "http-alt",
	9418: "git",
}

var udpNames = map[int]string{
	7:    "echo",
	9:    "discard",
	53:   "domain",
	67:   "bootps",
	68:   "bootpc",
	69:   "tftp",
	123:  "ntp",
	137:  "netbios-ns",
	138:  "netbios-dgm",
	161:  "snmp",
	162:  "snmptrap",
	500:  "isakmp",
	514:  "syslog",
	520:  "router",
	1900: "ssdp",
	4500: "ipsec-nat-t",
	5353: "mdns",
}
