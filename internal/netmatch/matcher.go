// Package netmatch resolves containment between an address or CIDR block query
// and the stored network records.
package netmatch

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/yl2chen/cidranger"

	"threatreg/internal/domain"
)

// Query selects network records. A zero Block means no address filter and an
// empty Company means no owner filter.
type Query struct {
	Block   netip.Prefix
	Address bool
	Company string
}

func (q Query) HasTarget() bool {
	return q.Block.IsValid()
}

// ParseQuery builds a Query from the raw search input. raw may be empty, a
// single address or a CIDR block; host bits of a block are masked.
func ParseQuery(raw, company string) (Query, error) {
	q := Query{Company: company}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return q, nil
	}

	if addr, err := netip.ParseAddr(raw); err == nil {
		addr = addr.WithZone("")
		q.Block = netip.PrefixFrom(addr, addr.BitLen())
		q.Address = true
		return q, nil
	}

	prefix, err := netip.ParsePrefix(raw)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %q", domain.ErrInvalidQuery, raw)
	}
	q.Block = prefix.Masked()
	return q, nil
}

// ParseBlock parses a block for storage. A bare address becomes a single-host
// block; a block with host bits set is rejected.
func ParseBlock(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Prefix{}, domain.Invalid("network", "cannot be empty")
	}

	if !strings.Contains(raw, "/") {
		addr, err := netip.ParseAddr(raw)
		if err != nil || addr.Zone() != "" {
			return netip.Prefix{}, domain.Invalid("network", "%q is not a valid network", raw)
		}
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	prefix, err := netip.ParsePrefix(raw)
	if err != nil {
		return netip.Prefix{}, domain.Invalid("network", "%q is not a valid network", raw)
	}
	if masked := prefix.Masked(); masked != prefix {
		return netip.Prefix{}, domain.Invalid("network", "%q has host bits set, did you mean %s", raw, masked)
	}
	return prefix, nil
}

// Match returns every candidate selected by q, in candidate order. Records
// whose stored network cannot be parsed never match an address query.
func Match(q Query, candidates []domain.NetworkRecord) []domain.NetworkRecord {
	out := make([]domain.NetworkRecord, 0)

	var hits map[netip.Prefix]struct{}
	if q.HasTarget() {
		hits = matchBlocks(q, candidates)
	}

	for _, record := range candidates {
		if q.Company != "" && record.Company != q.Company {
			continue
		}
		if hits != nil {
			block, err := netip.ParsePrefix(record.Network)
			if err != nil {
				continue
			}
			if _, ok := hits[block.Masked()]; !ok {
				continue
			}
		}
		out = append(out, record)
	}
	return out
}

type blockEntry struct {
	network net.IPNet
	block   netip.Prefix
}

func (e *blockEntry) Network() net.IPNet {
	return e.network
}

// matchBlocks returns the set of distinct candidate blocks that overlap the
// query target. Several records may share one block.
func matchBlocks(q Query, candidates []domain.NetworkRecord) map[netip.Prefix]struct{} {
	hits := make(map[netip.Prefix]struct{})

	ranger := cidranger.NewPCTrieRanger()
	seen := make(map[netip.Prefix]struct{}, len(candidates))
	var mapped []netip.Prefix

	for _, record := range candidates {
		block, err := netip.ParsePrefix(record.Network)
		if err != nil {
			continue
		}
		block = block.Masked()
		if _, dup := seen[block]; dup {
			continue
		}
		seen[block] = struct{}{}

		// net.IP cannot tell IPv4-mapped IPv6 apart from IPv4, so those
		// blocks stay out of the trie.
		if block.Addr().Is4In6() {
			mapped = append(mapped, block)
			continue
		}
		if err := ranger.Insert(&blockEntry{network: toIPNet(block), block: block}); err != nil {
			mapped = append(mapped, block)
		}
	}

	if q.Block.Addr().Is4In6() {
		for block := range seen {
			if overlaps(q, block) {
				hits[block] = struct{}{}
			}
		}
		return hits
	}

	for _, block := range mapped {
		if overlaps(q, block) {
			hits[block] = struct{}{}
		}
	}

	containing, err := ranger.ContainingNetworks(net.IP(q.Block.Addr().AsSlice()))
	if err == nil {
		for _, entry := range containing {
			block := entry.(*blockEntry).block
			if overlaps(q, block) {
				hits[block] = struct{}{}
			}
		}
	}

	if q.Address {
		return hits
	}

	covered, err := ranger.CoveredNetworks(toIPNet(q.Block))
	if err == nil {
		for _, entry := range covered {
			block := entry.(*blockEntry).block
			if overlaps(q, block) {
				hits[block] = struct{}{}
			}
		}
	}
	return hits
}

func overlaps(q Query, block netip.Prefix) bool {
	if q.Address {
		return Contains(block, q.Block.Addr())
	}
	return SubsetOf(q.Block, block) || SubsetOf(block, q.Block)
}

// Contains reports whether addr lies inside block. Addresses of the other
// family never match.
func Contains(block netip.Prefix, addr netip.Addr) bool {
	if block.Addr().Is4() != addr.Is4() {
		return false
	}
	return block.Contains(addr)
}

// SubsetOf reports whether every address of a is also in b.
func SubsetOf(a, b netip.Prefix) bool {
	if a.Addr().Is4() != b.Addr().Is4() {
		return false
	}
	if b.Bits() > a.Bits() {
		return false
	}
	return b.Contains(a.Addr())
}

func toIPNet(p netip.Prefix) net.IPNet {
	return net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}
