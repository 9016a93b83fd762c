package resolve

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Blacklist holds the domains a resolver must never return.
type Blacklist struct {
	freemail    map[string]struct{}
	directories map[string]struct{}
}

// NewBlacklist builds a Blacklist. freemail entries are exact email domains.
// directory entries are either a bare site label ("yelp") matching any of
// that site's registrable domains, or a full domain ("yelp.com").
func NewBlacklist(freemail, directories []string) *Blacklist {
	b := &Blacklist{
		freemail:    make(map[string]struct{}, len(freemail)),
		directories: make(map[string]struct{}, len(directories)),
	}
	for _, d := range freemail {
		if d = normalizeHost(d); d != "" {
			b.freemail[d] = struct{}{}
		}
	}
	for _, d := range directories {
		if d = normalizeHost(d); d != "" {
			b.directories[d] = struct{}{}
		}
	}
	return b
}

// IsFreemail reports whether domain is a free-mail or ISP domain.
func (b *Blacklist) IsFreemail(domain string) bool {
	_, ok := b.freemail[normalizeHost(domain)]
	return ok
}

// IsDirectory reports whether host belongs to a listing or rating site.
func (b *Blacklist) IsDirectory(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	if _, ok := b.directories[host]; ok {
		return true
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		reg = host
	}
	if _, ok := b.directories[reg]; ok {
		return true
	}
	label, _, _ := strings.Cut(reg, ".")
	_, ok := b.directories[label]
	return ok
}

// Len returns the number of free-mail and directory entries.
func (b *Blacklist) Len() (freemail, directories int) {
	return len(b.freemail), len(b.directories)
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}
