package route

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const bird2Dump = `BIRD 2.0.8 ready.
Table master4:
10.0.0.0/24          unicast [direct1 10:00:00] * (240)
	via 192.168.1.1 on eth0
10.10.0.0/16         unicast [bgp_peer1 09:12:33 from 192.168.1.2] * (100) [AS65010i]
	via 192.168.1.2 on eth0
192.168.1.0/24       unicast [direct1 10:00:00] * (240)
	dev eth0
203.0.113.0/24       blackhole [static1 10:00:01] * (200)
198.51.100.0/24      unicast [bgp_peer2 09:12:40] ! (100)
	via 192.168.2.2 on eth1
`

func TestParse_Example(t *testing.T) {
	raw := "10.0.0.0/24    unicast [direct1 10:00:00] * (240)\nvia 192.168.1.1 on eth0\n"
	got := Parse("edge1", raw)

	want := []Record{{
		Destination: "10.0.0.0/24",
		Type:        "unicast",
		Protocol:    "direct1",
		Status:      StatusPrimary,
		Metric:      Some(240),
		NextHop:     Some("192.168.1.1"),
		Interface:   Some("eth0"),
		HostID:      "edge1",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Bird2Dump(t *testing.T) {
	got := Parse("edge1", bird2Dump)
	if len(got) != 5 {
		t.Fatalf("got %d records, want 5: %+v", len(got), got)
	}

	wantDest := []string{"10.0.0.0/24", "10.10.0.0/16", "192.168.1.0/24", "203.0.113.0/24", "198.51.100.0/24"}
	for i, r := range got {
		if r.Destination != wantDest[i] {
			t.Errorf("record %d destination = %q, want %q", i, r.Destination, wantDest[i])
		}
		if r.HostID != "edge1" {
			t.Errorf("record %d host = %q", i, r.HostID)
		}
	}

	bgp := got[1]
	if bgp.Protocol != "bgp_peer1" || bgp.Metric != Some(100) || bgp.NextHop != Some("192.168.1.2") {
		t.Errorf("bgp record = %+v", bgp)
	}

	direct := got[2]
	if direct.NextHop.IsSet() {
		t.Errorf("dev route should have no next hop, got %v", direct.NextHop)
	}
	if direct.Interface != Some("eth0") {
		t.Errorf("dev route interface = %v, want eth0", direct.Interface)
	}

	null := got[3]
	if null.Type != "blackhole" || null.NextHop.IsSet() || null.Interface.IsSet() {
		t.Errorf("blackhole record = %+v", null)
	}

	if got[4].Status != StatusFiltered {
		t.Errorf("filtered record status = %q", got[4].Status)
	}
}

func TestParse_NoContinuations(t *testing.T) {
	lines := []string{
		"10.1.0.0/16 unreachable [static1 10:00:00] * (200)",
		"10.2.0.0/16 blackhole [static1 10:00:00] * (200)",
		"10.3.0.0/16 prohibited [static1 10:00:00] (200)",
		"2001:db8::/32 blackhole [static2 10:00:00] * (200)",
	}
	got := Parse("edge1", strings.Join(lines, "\n"))
	if len(got) != len(lines) {
		t.Fatalf("got %d records, want %d", len(got), len(lines))
	}
	for _, r := range got {
		if r.NextHop.IsSet() || r.Interface.IsSet() {
			t.Errorf("%s: next hop %v interface %v, want both unset", r.Destination, r.NextHop, r.Interface)
		}
	}
	if got[2].Status != StatusNone {
		t.Errorf("unmarked route status = %q, want none", got[2].Status)
	}
}

func TestParse_ViaContinuationFieldCount(t *testing.T) {
	tests := []struct {
		name    string
		via     string
		nextHop Opt[string]
		iface   Opt[string]
	}{
		{"four fields", "via 10.0.0.1 on eth0", Some("10.0.0.1"), Some("eth0")},
		{"two fields", "via 10.0.0.1", Some("10.0.0.1"), None[string]()},
		{"three fields", "via 10.0.0.1 on", Some("10.0.0.1"), None[string]()},
		{"extra fields", "via 10.0.0.1 on eth0 mpls 100", Some("10.0.0.1"), Some("eth0")},
		{"bare token", "via", None[string](), None[string]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse("h", "10.0.0.0/8 unicast [bgp1 10:00] * (100)\n\t"+tt.via)
			if len(got) != 1 {
				t.Fatalf("got %d records, want 1", len(got))
			}
			if got[0].NextHop != tt.nextHop {
				t.Errorf("next hop = %v, want %v", got[0].NextHop, tt.nextHop)
			}
			if got[0].Interface != tt.iface {
				t.Errorf("interface = %v, want %v", got[0].Interface, tt.iface)
			}
		})
	}
}

func TestParse_DevContinuation(t *testing.T) {
	got := Parse("h", "172.16.0.0/12 unicast [direct1 10:00] * (240)\n  dev br0\n")
	if len(got) != 1 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].NextHop.IsSet() {
		t.Errorf("next hop = %v, want unset", got[0].NextHop)
	}
	if got[0].Interface != Some("br0") {
		t.Errorf("interface = %v, want br0", got[0].Interface)
	}
}

func TestParse_ContinuationOnlyAfterRecord(t *testing.T) {
	raw := strings.Join([]string{
		"BIRD 2.0.8 ready.",
		"via 10.9.9.9 on eth9",
		"10.0.0.0/24 unicast [static1 10:00] * (200)",
		"",
		"via 10.0.0.1 on eth0",
		"10.1.0.0/24 unicast [static1 10:00] * (200)",
		"\tvia 10.1.0.1 on eth1",
		"\tvia 10.1.0.2 on eth2",
	}, "\n")
	got := Parse("h", raw)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(got), got)
	}
	for _, r := range got {
		if r.Destination == tokenVia || r.Type == tokenVia {
			t.Errorf("continuation token leaked into record: %+v", r)
		}
	}
	if got[0].NextHop.IsSet() {
		t.Errorf("blank line should end lookahead, got next hop %v", got[0].NextHop)
	}
	if got[1].NextHop != Some("10.1.0.1") {
		t.Errorf("only the first continuation line is consumed, got %v", got[1].NextHop)
	}
}

func TestParse_SingleLineForm(t *testing.T) {
	raw := strings.Join([]string{
		"10.1.0.0/16        via 10.0.0.1 on eth1 [static1 12:00:00] * (200)",
		"10.2.0.0/16        dev eth2 [direct1 12:00:00] * (240)",
		"10.3.0.0/16        blackhole [static1 12:00:00] * (200)",
	}, "\n")
	got := Parse("h", raw)

	want := []Record{
		{Destination: "10.1.0.0/16", Type: "unicast", Protocol: "static1", Status: StatusPrimary,
			Metric: Some(200), NextHop: Some("10.0.0.1"), Interface: Some("eth1"), HostID: "h"},
		{Destination: "10.2.0.0/16", Type: "unicast", Protocol: "direct1", Status: StatusPrimary,
			Metric: Some(240), Interface: Some("eth2"), HostID: "h"},
		{Destination: "10.3.0.0/16", Type: "blackhole", Protocol: "static1", Status: StatusPrimary,
			Metric: Some(200), HostID: "h"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"banner only", "BIRD 2.0.8 ready.\nTable master4:\n", 0},
		{"lone digit", "1", 1},
		{"digit with garbage", "9 ] [", 1},
		{"unclassifiable", "Network not found\n\tType: static univ\n", 0},
		{"metric overflow", "10.0.0.0/8 unicast [x] (99999999999999999999999)", 1},
		{"crlf", "10.0.0.0/8 unicast [bgp1 10:00] * (100)\r\n\tvia 10.0.0.1 on eth0\r\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse("h", tt.raw)
			if len(got) != tt.want {
				t.Fatalf("got %d records, want %d: %+v", len(got), tt.want, got)
			}
		})
	}

	got := Parse("h", "1")
	if got[0].Destination != "1" || got[0].Type != "" || got[0].Protocol != "" {
		t.Errorf("best-effort fields = %+v", got[0])
	}

	got = Parse("h", "10.0.0.0/8 unicast [x] (99999999999999999999999)")
	if got[0].Metric.IsSet() {
		t.Errorf("overflowing metric should be unset, got %v", got[0].Metric)
	}

	got = Parse("h", "10.0.0.0/8 unicast [bgp1 10:00] * (100)\r\n\tvia 10.0.0.1 on eth0\r\n")
	if got[0].Interface != Some("eth0") {
		t.Errorf("interface = %v, want eth0", got[0].Interface)
	}
}

func TestParse_MetricAbsent(t *testing.T) {
	got := Parse("h", "10.0.0.0/8 unicast [ospf1 10:00] * (150/20)")
	if len(got) != 1 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].Metric.IsSet() {
		t.Errorf("metric = %v, want unset", got[0].Metric)
	}
}

func TestParse_FreshGeneration(t *testing.T) {
	p := NewParser("h")
	first := p.Parse(bird2Dump)
	second := p.Parse(bird2Dump)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("parsing the same dump twice differs:\n%s", diff)
	}
	first[0].Destination = "mutated"
	if second[0].Destination == "mutated" {
		t.Error("generations share storage")
	}
}

func TestParse_IPv6LetterPrefixes(t *testing.T) {
	raw := strings.Join([]string{
		"Table master6:",
		"fd00:1::/64          unicast [static1 10:00:00] * (200)",
		"\tvia fd00::1 on eth0",
		"2001:db8::/32        unicast [bgp1 10:00:00] * (100)",
		"\tvia 2001:db8::1 on eth1",
		"::/0                 unicast [kernel1 10:00:00] * (10)",
		"\tdev eth1",
		"fe80::/10            unreachable [static1 10:00:00] * (200)",
		"fe80 is not a prefix",
	}, "\n")

	got := Parse("h", raw)
	var dests []string
	for _, r := range got {
		dests = append(dests, r.Destination)
	}
	want := []string{"fd00:1::/64", "2001:db8::/32", "::/0", "fe80::/10"}
	if diff := cmp.Diff(want, dests); diff != "" {
		t.Fatalf("destinations mismatch (-want +got):\n%s", diff)
	}
	if nh, _ := got[0].NextHop.Get(); nh != "fd00::1" {
		t.Errorf("next hop of fd00:1::/64 = %q", nh)
	}
	if iface, _ := got[2].Interface.Get(); iface != "eth1" {
		t.Errorf("interface of ::/0 = %q", iface)
	}
}
