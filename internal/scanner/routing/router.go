// Package routing maps surface categories to scan channels.
//
// Tag strings are interned into scanner.Category values once, when the
// configuration is loaded. Per-hit routing is then a slice lookup.
package routing

import (
	"fmt"
	"math/bits"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

// MaxChannels is the number of channels a Router can address.
const MaxChannels = 64

// TagTable interns tag names. Category 0 is reserved for untagged surfaces.
type TagTable struct {
	byName map[string]scanner.Category
	names  []string
}

// NewTagTable returns a table that already knows the given tags.
func NewTagTable(tags ...string) *TagTable {
	t := &TagTable{
		byName: make(map[string]scanner.Category),
		names:  []string{""},
	}
	for _, tag := range tags {
		t.Intern(tag)
	}
	return t
}

// Intern returns the category for tag, allocating one if needed. The empty
// tag maps to CategoryNone.
func (t *TagTable) Intern(tag string) scanner.Category {
	if tag == "" {
		return scanner.CategoryNone
	}
	if c, ok := t.byName[tag]; ok {
		return c
	}
	c := scanner.Category(len(t.names))
	t.byName[tag] = c
	t.names = append(t.names, tag)
	return c
}

// Lookup resolves an existing tag without interning it.
func (t *TagTable) Lookup(tag string) (scanner.Category, error) {
	if tag == "" {
		return scanner.CategoryNone, nil
	}
	c, ok := t.byName[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %q", scanner.ErrUnknownTag, tag)
	}
	return c, nil
}

// Name returns the tag for c, or "" when c is unknown.
func (t *TagTable) Name(c scanner.Category) string {
	if int(c) < len(t.names) {
		return t.names[c]
	}
	return ""
}

// Len returns the number of categories including CategoryNone.
func (t *TagTable) Len() int { return len(t.names) }

// ChannelRule is the routing part of a channel configuration.
type ChannelRule struct {
	Name         string
	IncludedTags []string
	RejectTag    string
}

// Router resolves a hit category to the set of channels that record it.
type Router struct {
	tags    *TagTable
	names   []string
	accept  []uint64 // category -> channel bitmap
	reject  []bool   // category -> dropped for every channel
	nchan   int
	scratch []int
}

// NewRouter builds a router for rules. globalReject lists tags that are
// dropped before any channel sees them. With a single channel its own
// reject tag is promoted to a global reject.
func NewRouter(tags *TagTable, rules []ChannelRule, globalReject []string) (*Router, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no channels configured", scanner.ErrInvalidConfig)
	}
	if len(rules) > MaxChannels {
		return nil, fmt.Errorf("%w: %d channels exceeds limit of %d", scanner.ErrInvalidConfig, len(rules), MaxChannels)
	}

	// Intern everything first so the lookup tables can be sized once.
	for _, r := range rules {
		for _, tag := range r.IncludedTags {
			tags.Intern(tag)
		}
		tags.Intern(r.RejectTag)
	}
	for _, tag := range globalReject {
		tags.Intern(tag)
	}

	rt := &Router{
		tags:   tags,
		accept: make([]uint64, tags.Len()),
		reject: make([]bool, tags.Len()),
		nchan:  len(rules),
	}

	for _, tag := range globalReject {
		if c := tags.Intern(tag); c != scanner.CategoryNone {
			rt.reject[c] = true
		}
	}
	for i, r := range rules {
		rt.names = append(rt.names, r.Name)
		for _, tag := range r.IncludedTags {
			rt.accept[tags.Intern(tag)] |= 1 << uint(i)
		}
	}
	for i, r := range rules {
		if r.RejectTag == "" {
			continue
		}
		c := tags.Intern(r.RejectTag)
		if len(rules) == 1 {
			rt.reject[c] = true
			continue
		}
		rt.accept[c] &^= 1 << uint(i)
	}
	return rt, nil
}

// Tags returns the table the router was built from.
func (r *Router) Tags() *TagTable { return r.tags }

// Name returns the configured name of channel i.
func (r *Router) Name(i int) string { return r.names[i] }

// Channels returns the number of routed channels.
func (r *Router) Channels() int { return r.nchan }

// Rejected reports whether c is dropped for every channel.
func (r *Router) Rejected(c scanner.Category) bool {
	return int(c) < len(r.reject) && r.reject[c]
}

// Mask returns the channel bitmap for c. Rejected and unknown categories
// yield 0.
func (r *Router) Mask(c scanner.Category) uint64 {
	if int(c) >= len(r.accept) || r.reject[c] {
		return 0
	}
	return r.accept[c]
}

// RouteInto appends the indices of every channel accepting c to dst, in
// channel order, and reports whether the hit was globally rejected.
func (r *Router) RouteInto(c scanner.Category, dst []int) ([]int, bool) {
	if r.Rejected(c) {
		return dst, true
	}
	m := r.Mask(c)
	for m != 0 {
		i := bits.TrailingZeros64(m)
		dst = append(dst, i)
		m &^= 1 << uint(i)
	}
	return dst, false
}

// Route is RouteInto with a router-owned scratch slice. The result is only
// valid until the next call.
func (r *Router) Route(c scanner.Category) ([]int, bool) {
	var rejected bool
	r.scratch, rejected = r.RouteInto(c, r.scratch[:0])
	return r.scratch, rejected
}
