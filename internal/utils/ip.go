package utils

import (
	"fmt"
	"net"
	"strings"
)

// AllowList holds the operator networks allowed to reach the admin API.
// An empty list allows everyone.
type AllowList struct {
	nets []*net.IPNet
}

// NewAllowList parses CIDRs ("10.0.0.0/8") and bare addresses ("127.0.0.1").
func NewAllowList(entries []string) (*AllowList, error) {
	al := &AllowList{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil && ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, netblock, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed network %q: %w", entry, err)
		}
		al.nets = append(al.nets, netblock)
	}
	return al, nil
}

// Empty reports whether no restriction is configured.
func (a *AllowList) Empty() bool {
	return a == nil || len(a.nets) == 0
}

// Allows checks if the IP address falls into one of the allowed networks.
func (a *AllowList) Allows(ip string) bool {
	if a.Empty() {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, netblock := range a.nets {
		if netblock.Contains(parsed) {
			return true
		}
	}
	return false
}
