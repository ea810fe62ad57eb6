package netmatch

import (
	"errors"
	"net/netip"
	"testing"

	"pgregory.net/rapid"

	"threatreg/internal/domain"
)

func record(id uint64, network, company string) domain.NetworkRecord {
	return domain.NetworkRecord{ID: id, Network: network, Company: company}
}

func ids(records []domain.NetworkRecord) []uint64 {
	out := make([]uint64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func mustQuery(t *testing.T, raw, company string) Query {
	t.Helper()
	q, err := ParseQuery(raw, company)
	if err != nil {
		t.Fatalf("ParseQuery(%q) returned %v", raw, err)
	}
	return q
}

func sameIDs(got, want []uint64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestMatch(t *testing.T) {
	candidates := []domain.NetworkRecord{
		record(1, "192.168.0.0/24", "acme"),
		record(2, "192.168.0.0/16", "acme"),
		record(3, "10.0.0.0/8", "globex"),
		record(4, "10.1.2.0/24", "initech"),
		record(5, "2001:db8::/32", "acme"),
		record(6, "2001:db8:1::/48", "globex"),
		record(7, "192.168.0.0/24", "globex"),
		record(8, "::ffff:0:0/96", "mapped"),
	}

	cases := []struct {
		name    string
		query   string
		company string
		want    []uint64
	}{
		{"address inside nested blocks", "192.168.0.5", "", []uint64{1, 2, 7}},
		{"address and company", "192.168.0.5", "acme", []uint64{1, 2}},
		{"address outside every block", "172.16.0.1", "", []uint64{}},
		{"block inside stored block", "10.1.2.128/25", "", []uint64{3, 4}},
		{"block covering stored blocks", "10.0.0.0/7", "", []uint64{3, 4}},
		{"exact block", "192.168.0.0/24", "", []uint64{1, 2, 7}},
		{"block with host bits is masked", "192.168.1.7/24", "", []uint64{2}},
		{"ipv6 address", "2001:db8:1::1", "", []uint64{5, 6}},
		{"ipv6 block covering", "2001:db8::/16", "", []uint64{5, 6}},
		{"ipv4 query ignores ipv6 blocks", "0.0.0.0/0", "", []uint64{1, 2, 3, 4, 7}},
		{"ipv6 query ignores ipv4 blocks", "::/0", "", []uint64{5, 6, 8}},
		{"mapped address matches mapped block only", "::ffff:192.168.0.5", "", []uint64{8}},
		{"company only", "", "globex", []uint64{3, 6, 7}},
		{"unknown company", "", "umbrella", []uint64{}},
		{"no filters", "", "", []uint64{1, 2, 3, 4, 5, 6, 7, 8}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(Match(mustQuery(t, tc.query, tc.company), candidates))
			if !sameIDs(got, tc.want) {
				t.Fatalf("Match(%q, %q) = %v, want %v", tc.query, tc.company, got, tc.want)
			}
		})
	}
}

func TestMatchSkipsUnparseableRecords(t *testing.T) {
	candidates := []domain.NetworkRecord{
		record(1, "garbage", "acme"),
		record(2, "10.0.0.0/8", "acme"),
	}

	got := ids(Match(mustQuery(t, "10.0.0.1", ""), candidates))
	if !sameIDs(got, []uint64{2}) {
		t.Fatalf("Match = %v, want [2]", got)
	}

	got = ids(Match(mustQuery(t, "", "acme"), candidates))
	if !sameIDs(got, []uint64{1, 2}) {
		t.Fatalf("company-only Match = %v, want [1 2]", got)
	}
}

func TestMatchEmptyCandidates(t *testing.T) {
	got := Match(mustQuery(t, "10.0.0.1", ""), nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("Match on no candidates = %#v, want empty non-nil slice", got)
	}
}

func TestParseQuery(t *testing.T) {
	q := mustQuery(t, " 10.0.0.1 ", "")
	if !q.Address || q.Block != netip.MustParsePrefix("10.0.0.1/32") {
		t.Fatalf("address query parsed as %+v", q)
	}

	q = mustQuery(t, "10.0.0.0/8", "acme")
	if q.Address || q.Block != netip.MustParsePrefix("10.0.0.0/8") || q.Company != "acme" {
		t.Fatalf("block query parsed as %+v", q)
	}

	q = mustQuery(t, "", "acme")
	if q.HasTarget() {
		t.Fatalf("empty query should carry no target: %+v", q)
	}

	for _, raw := range []string{"not-an-ip", "10.0.0.0/33", "10.0.0.256", "acme.com"} {
		if _, err := ParseQuery(raw, ""); !errors.Is(err, domain.ErrInvalidQuery) {
			t.Fatalf("ParseQuery(%q) returned %v, want ErrInvalidQuery", raw, err)
		}
	}
}

func TestParseBlock(t *testing.T) {
	valid := map[string]string{
		"192.168.0.0/24": "192.168.0.0/24",
		"10.0.0.1":       "10.0.0.1/32",
		"2001:db8::/32":  "2001:db8::/32",
		"2001:db8::1":    "2001:db8::1/128",
		" 0.0.0.0/0 ":    "0.0.0.0/0",
	}
	for raw, want := range valid {
		got, err := ParseBlock(raw)
		if err != nil {
			t.Fatalf("ParseBlock(%q) returned %v", raw, err)
		}
		if got.String() != want {
			t.Fatalf("ParseBlock(%q) = %s, want %s", raw, got, want)
		}
	}

	for _, raw := range []string{"", "192.168.0.5/24", "10.0.0.0/40", "fe80::1%eth0", "example.com"} {
		if _, err := ParseBlock(raw); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("ParseBlock(%q) returned %v, want validation error", raw, err)
		}
	}
}

func prefixGen(v6 bool) *rapid.Generator[netip.Prefix] {
	return rapid.Custom(func(t *rapid.T) netip.Prefix {
		size := 4
		if v6 {
			size = 16
		}
		raw := rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, "addr")
		addr, _ := netip.AddrFromSlice(raw)
		bits := rapid.IntRange(0, addr.BitLen()).Draw(t, "bits")
		return netip.PrefixFrom(addr, bits).Masked()
	})
}

func matches(q Query, block netip.Prefix) bool {
	return len(Match(q, []domain.NetworkRecord{record(1, block.String(), "x")})) == 1
}

func TestReflexiveContainment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		block := prefixGen(rapid.Bool().Draw(t, "v6")).Draw(t, "block")
		if !matches(Query{Block: block}, block) {
			t.Fatalf("%s does not match itself", block)
		}
	})
}

func TestBidirectionalContainment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		inner := prefixGen(rapid.Bool().Draw(t, "v6")).Draw(t, "inner")
		outerBits := rapid.IntRange(0, inner.Bits()).Draw(t, "outerBits")
		outer := netip.PrefixFrom(inner.Addr(), outerBits).Masked()

		if !matches(Query{Block: inner}, outer) {
			t.Fatalf("query %s should match stored superset %s", inner, outer)
		}
		if !matches(Query{Block: outer}, inner) {
			t.Fatalf("query %s should match stored subset %s", outer, inner)
		}
	})
}

func TestAddressContainment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		block := prefixGen(rapid.Bool().Draw(t, "v6")).Draw(t, "block")
		host := netip.PrefixFrom(block.Addr(), block.Addr().BitLen())
		if !matches(Query{Block: host, Address: true}, block) {
			t.Fatalf("address %s should be inside %s", block.Addr(), block)
		}
	})
}

func TestCrossFamilyNeverMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v4 := prefixGen(false).Draw(t, "v4")
		v6 := prefixGen(true).Draw(t, "v6")
		address := rapid.Bool().Draw(t, "address")

		q4 := Query{Block: v4, Address: address}
		q6 := Query{Block: v6, Address: address}
		if address {
			q4.Block = netip.PrefixFrom(v4.Addr(), 32)
			q6.Block = netip.PrefixFrom(v6.Addr(), 128)
		}

		if matches(q4, v6) {
			t.Fatalf("ipv4 query %s matched ipv6 block %s", q4.Block, v6)
		}
		if matches(q6, v4) {
			t.Fatalf("ipv6 query %s matched ipv4 block %s", q6.Block, v4)
		}
	})
}

func TestNestedAddressScenario(t *testing.T) {
	candidates := []domain.NetworkRecord{
		record(1, "192.168.0.0/24", "acme"),
		record(2, "192.168.0.0/16", "acme"),
	}
	got := ids(Match(mustQuery(t, "192.168.0.5", "acme"), candidates))
	if !sameIDs(got, []uint64{1, 2}) {
		t.Fatalf("Match = %v, want both acme blocks", got)
	}
}
