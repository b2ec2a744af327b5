package gateway

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// AllTables grants access to every entity table
const AllTables = "*"

// Grants records which entity tables each app may access
type Grants map[string][]string

// ParseGrants parses entries in the form 'app-id=table1|table2'
func ParseGrants(entries []string) (Grants, error) {
	g := make(Grants, len(entries))
	for _, entry := range entries {
		appId, tables, ok := strings.Cut(entry, "=")
		if !ok || appId == "" || tables == "" {
			return nil, fmt.Errorf("malformed entity grant '%s'", entry)
		}
		g[appId] = append(g[appId], strings.Split(tables, "|")...)
	}
	return g, nil
}

// Allows reports whether appId has been granted access to table
func (g Grants) Allows(appId, table string) bool {
	tables := g[appId]
	return slices.Contains(tables, AllTables) || slices.Contains(tables, table)
}

// Allowlist restricts the client addresses each app may call from. Apps with no entry
// may call from anywhere.
type Allowlist map[string][]netip.Prefix

// ParseAllowlist parses entries in the form 'app-id=10.0.0.0/8|192.168.1.7'
func ParseAllowlist(entries []string) (Allowlist, error) {
	a := make(Allowlist, len(entries))
	for _, entry := range entries {
		appId, networks, ok := strings.Cut(entry, "=")
		if !ok || appId == "" || networks == "" {
			return nil, fmt.Errorf("malformed allowlist entry '%s'", entry)
		}
		for _, s := range strings.Split(networks, "|") {
			prefix, err := parsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("malformed allowlist entry for '%s': %w", appId, err)
			}
			a[appId] = append(a[appId], prefix)
		}
	}
	return a, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Allows reports whether appId may call from remoteAddr, which is either a bare IP
// address or an 'ip:port' pair as found in http.Request.RemoteAddr
func (a Allowlist) Allows(appId, remoteAddr string) bool {
	prefixes, ok := a[appId]
	if !ok {
		return true
	}
	addr, err := netip.ParseAddrPort(remoteAddr)
	ip := addr.Addr()
	if err != nil {
		if ip, err = netip.ParseAddr(remoteAddr); err != nil {
			return false
		}
	}
	ip = ip.Unmap()
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
