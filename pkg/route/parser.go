package route

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/birdsync/birdsync/pkg/util"
)

// Continuation tokens. A continuation line only ever extends the record
// started on the line directly above it.
const (
	tokenVia = "via"
	tokenDev = "dev"
)

// Banner prefixes printed by birdc ahead of the table body.
var bannerPrefixes = []string{"BIRD", "Table"}

var metricPattern = regexp.MustCompile(`\((\d+)\)`)

type parseState int

const (
	awaitingRecord parseState = iota
	awaitingContinuation
)

// Parser turns a "birdc show route" dump into records for one host.
type Parser struct {
	hostID string
}

// NewParser creates a parser that stamps records with hostID.
func NewParser(hostID string) *Parser {
	return &Parser{hostID: hostID}
}

// Parse is shorthand for NewParser(hostID).Parse(raw).
func Parse(hostID, raw string) []Record {
	return NewParser(hostID).Parse(raw)
}

// Parse returns the records of raw in dump order. Lines that cannot be
// classified are skipped; Parse never fails.
func (p *Parser) Parse(raw string) []Record {
	var (
		records []Record
		pending Record
		state   = awaitingRecord
		skipped int
	)

	for _, line := range strings.Split(raw, "\n") {
		text := strings.TrimSpace(line)

		if state == awaitingContinuation {
			state = awaitingRecord
			consumed := applyContinuation(&pending, text)
			records = append(records, pending)
			if consumed {
				continue
			}
		}

		if text == "" || isBanner(text) {
			continue
		}
		if !startsRecord(text) {
			skipped++
			continue
		}

		pending = p.startRecord(text)
		if pending.NextHop.IsSet() || pending.Interface.IsSet() {
			// single-line form already carried its gateway
			records = append(records, pending)
			continue
		}
		state = awaitingContinuation
	}
	if state == awaitingContinuation {
		records = append(records, pending)
	}

	util.WithHost(p.hostID).Debugf("parsed %d routes, skipped %d lines", len(records), skipped)
	return records
}

func isBanner(text string) bool {
	for _, prefix := range bannerPrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// startsRecord reports whether text opens a record: it starts with a digit,
// or its first token is a prefix such as fd00:1::/64 or ::/0.
func startsRecord(text string) bool {
	if text == "" {
		return false
	}
	if text[0] >= '0' && text[0] <= '9' {
		return true
	}
	_, err := netip.ParsePrefix(strings.Fields(text)[0])
	return err == nil
}

// startRecord extracts the fields of a start-of-record line. Missing fields
// come back empty rather than failing.
func (p *Parser) startRecord(text string) Record {
	fields := strings.Fields(text)
	r := Record{
		Destination: field(fields, 0),
		Status:      statusOf(text),
		Metric:      metricOf(text),
		HostID:      p.hostID,
	}

	switch field(fields, 1) {
	case tokenVia:
		// 10.1.0.0/16 via 10.0.0.1 on eth1 [static1 12:00:00] * (200)
		// This form prints no type; a gateway route is unicast.
		r.Type = "unicast"
		r.Protocol = bracketed(fields)
		if nh := field(fields, 2); isValue(nh) {
			r.NextHop = Some(nh)
		}
		if field(fields, 3) == "on" {
			if iface := field(fields, 4); isValue(iface) {
				r.Interface = Some(iface)
			}
		}
	case tokenDev:
		// 10.2.0.0/16 dev eth2 [direct1 12:00:00] * (240)
		r.Type = "unicast"
		r.Protocol = bracketed(fields)
		if iface := field(fields, 2); isValue(iface) {
			r.Interface = Some(iface)
		}
	default:
		r.Type = field(fields, 1)
		r.Protocol = strings.Trim(field(fields, 2), "[]")
	}
	return r
}

// applyContinuation folds a via/dev line into r and reports whether the line
// was consumed.
func applyContinuation(r *Record, text string) bool {
	fields := strings.Fields(text)
	switch field(fields, 0) {
	case tokenVia:
		if nh := field(fields, 1); nh != "" {
			r.NextHop = Some(nh)
		}
		if len(fields) > 3 {
			r.Interface = Some(fields[3])
		}
		return true
	case tokenDev:
		if iface := field(fields, 1); iface != "" {
			r.Interface = Some(iface)
		}
		return true
	}
	return false
}

func statusOf(text string) Status {
	switch {
	case strings.Contains(text, "*"):
		return StatusPrimary
	case strings.Contains(text, "!"):
		return StatusFiltered
	}
	return StatusNone
}

func metricOf(text string) Opt[int] {
	m := metricPattern.FindStringSubmatch(text)
	if m == nil {
		return None[int]()
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return None[int]()
	}
	return Some(n)
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// isValue reports whether an inline token is data rather than the start of
// the bracketed protocol section.
func isValue(s string) bool {
	return s != "" && !strings.HasPrefix(s, "[")
}

func bracketed(fields []string) string {
	for _, f := range fields {
		if strings.HasPrefix(f, "[") {
			return strings.Trim(f, "[]")
		}
	}
	return ""
}
