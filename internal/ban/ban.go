// Package ban implements the shared G-line/jupe/BADCHAN lifecycle: a
// lamport-ordered (lastmod), expiring, mask-based access-control list used
// three ways by internal/server (client bans, server jupes, channel
// quarantines), per spec §4.I.
package ban

import (
	"fmt"
	"time"

	"github.com/supamanluva/ircd/internal/match"
)

// Flags is a bitmask of a Record's lifecycle/shape attributes.
type Flags uint16

const (
	// Active marks a ban currently in effect.
	Active Flags = 1 << iota
	// Local marks a ban that never propagates to peers.
	Local
	// IPMask marks a mask that should be matched as a CIDR netmask rather
	// than user@host glob.
	IPMask
	// Badchan marks a channel-quarantine record (action on match is JOIN
	// refusal, not client exit).
	Badchan
	// Realname marks a $R<pattern> realname-mask record (ircu2's
	// asymmetric-overlap G-line variant, spec §9(a)/SPEC_FULL §5).
	Realname
	// LDeact marks a ban that is locally deactivated: LDEACT toggles
	// without propagating, distinct from a full deactivate.
	LDeact
)

// Kind distinguishes the three control-plane lists that share this
// lifecycle. They never interact with each other's overlap rules.
type Kind int

const (
	KindGline Kind = iota
	KindJupe
	KindBadchan
)

// Record is one ban/jupe/badchan entry.
type Record struct {
	Kind    Kind
	Mask    string
	Reason  string
	Expire  time.Time
	Lastmod int64
	Flags   Flags
	SetBy   string
}

// IsActive reports whether the record is both flagged Active and not
// locally deactivated, and has not expired as of now.
func (r *Record) IsActive(now time.Time) bool {
	if r.Flags&LDeact != 0 {
		return false
	}
	if r.Flags&Active == 0 {
		return false
	}
	return now.Before(r.Expire)
}

// Matches reports whether target (a user@host, $R realname, channel name,
// or server name, depending on r.Kind) is covered by this record's mask.
func (r *Record) Matches(target string) bool {
	if r.Flags&Realname != 0 {
		return match.Wildcard(r.Mask, target)
	}
	return match.Wildcard(r.Mask, target)
}

// List is a lamport-ordered collection of Records of one Kind (G-lines,
// jupes, or BADCHANs all instantiate this identically, per spec §4.I's
// "all three share the same lifecycle skeleton").
type List struct {
	kind    Kind
	records []*Record
}

// NewList constructs an empty List for the given Kind.
func NewList(kind Kind) *List {
	return &List{kind: kind}
}

// overlapError is returned by Add when a narrower incoming mask is rejected
// because a wider, still-covering ban already exists (spec B1).
type overlapError struct{ existing *Record }

func (e *overlapError) Error() string {
	return fmt.Sprintf("ban: rejected, existing mask %q already covers it and expires no earlier", e.existing.Mask)
}

// Add inserts a new record, applying the overlap rules from spec §3
// invariants B1-B2 (G-lines and BADCHANs only; jupes have no overlap
// concept beyond exact-name collision, which the caller resolves via
// internal/resolve before calling Add).
//
// Rule: an incoming mask that is a superset of an existing mask, and whose
// expiry is no earlier than that existing mask's, absorbs (replaces) it.
// An incoming mask that is a subset of an existing active mask whose
// expiry is no earlier is rejected.
func (l *List) Add(r *Record) error {
	var toRemove []int
	for i, existing := range l.records {
		if r.Kind == KindJupe || existing.Kind != r.Kind || existing.Flags&Realname != r.Flags&Realname {
			continue
		}
		if !existing.IsActive(time.Now()) {
			continue
		}
		switch {
		case match.IsSuperset(existing.Mask, r.Mask):
			if !existing.Expire.Before(r.Expire) {
				return &overlapError{existing: existing}
			}
		case match.IsSuperset(r.Mask, existing.Mask):
			if !r.Expire.Before(existing.Expire) {
				toRemove = append(toRemove, i)
			}
		}
	}
	l.removeIndices(toRemove)
	r.Mask = match.CollapseMask(r.Mask)
	l.records = append(l.records, r)
	return nil
}

func (l *List) removeIndices(idx []int) {
	if len(idx) == 0 {
		return
	}
	keep := l.records[:0]
	skip := make(map[int]bool, len(idx))
	for _, i := range idx {
		skip[i] = true
	}
	for i, r := range l.records {
		if !skip[i] {
			keep = append(keep, r)
		}
	}
	l.records = keep
}

// Activate applies an activate/deactivate decision using the lamport rule
// from spec §4.I: local bans only ever toggle LDEACT; otherwise a higher
// incoming lastmod wins, equal lastmod during burst is a no-op, and a lower
// incoming lastmod means our side should resend its version (the caller is
// responsible for doing that resend — Activate reports needResync=true).
func (l *List) Activate(mask string, active bool, lastmod int64, local bool) (needResync bool, applied bool) {
	r := l.find(mask)
	if r == nil {
		return false, false
	}
	if local {
		if active {
			r.Flags &^= LDeact
		} else {
			r.Flags |= LDeact
		}
		return false, true
	}
	switch {
	case lastmod > r.Lastmod:
		if active {
			r.Flags |= Active
		} else {
			r.Flags &^= Active
		}
		r.Lastmod = lastmod
		return false, true
	case lastmod == r.Lastmod:
		return false, false
	default:
		return true, false
	}
}

func (l *List) find(mask string) *Record {
	for _, r := range l.records {
		if r.Mask == mask {
			return r
		}
	}
	return nil
}

// Find looks up records matching target, parametric over exact-vs-glob
// match and active-only-vs-any, per spec §4.I's `find(mask, flags)`.
// Expired entries encountered during the walk are lazily freed.
func (l *List) Find(target string, activeOnly bool) []*Record {
	now := time.Now()
	var out []*Record
	var alive []*Record
	for _, r := range l.records {
		if now.After(r.Expire) {
			continue // lazily freed: dropped from alive, not appended to out
		}
		alive = append(alive, r)
		if activeOnly && !r.IsActive(now) {
			continue
		}
		if r.Matches(target) {
			out = append(out, r)
		}
	}
	l.records = alive
	return out
}

// All returns every record currently held, expired or not (used by
// internal/burst to propagate the full list on link-up).
func (l *List) All() []*Record {
	out := make([]*Record, len(l.records))
	copy(out, l.records)
	return out
}

// ValidateMask applies the local-admin mask-validation rule from spec
// §4.I: an unwildcarded mask is always allowed; a wildcarded one must
// match at least two non-wild domain components, or cover an IP netmask of
// at least 16 bits, unless override is set.
func ValidateMask(mask string, override bool) error {
	if override {
		return nil
	}
	if cidrBits, ok := cidrPrefixLen(mask); ok {
		if cidrBits < 16 {
			return fmt.Errorf("ban: netmask /%d narrower than the minimum /16", cidrBits)
		}
		return nil
	}
	if !containsWildcard(mask) {
		return nil
	}
	if countNonWildDomainParts(mask) < 2 {
		return fmt.Errorf("ban: wildcard mask %q must match at least two non-wild domain components", mask)
	}
	return nil
}

func containsWildcard(mask string) bool {
	for i := 0; i < len(mask); i++ {
		if mask[i] == '*' || mask[i] == '?' {
			return true
		}
	}
	return false
}

func cidrPrefixLen(mask string) (int, bool) {
	slash := -1
	for i := len(mask) - 1; i >= 0; i-- {
		if mask[i] == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		return 0, false
	}
	n := 0
	for _, c := range mask[slash+1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func countNonWildDomainParts(mask string) int {
	host := mask
	if at := lastIndexByte(mask, '@'); at >= 0 {
		host = mask[at+1:]
	}
	count := 0
	start := 0
	for i := 0; i <= len(host); i++ {
		if i == len(host) || host[i] == '.' {
			part := host[start:i]
			if part != "" && !containsWildcard(part) {
				count++
			}
			start = i + 1
		}
	}
	return count
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
