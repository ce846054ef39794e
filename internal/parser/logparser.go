package parser

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"log-viewer-backend/internal/model"
)

type LogParser interface {
	// Parse never fails: unrecognized input yields a record whose fields
	// fall back to their absent/unknown defaults.
	Parse(line string) model.Record
}

var (
	// "web-1  | rest of line", the docker compose multiplexing convention.
	servicePattern = regexp.MustCompile(`^(\S+)\s*\|\s*(.*)$`)

	// CSI sequences (colors, cursor movement) and bare two-byte escapes.
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b[@-Z\\-_]`)

	// [2024-01-11 16:40:38,620]
	bracketedTimestamp = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2})[,.](\d+)\]`)
	// 2024-01-11 16:40:38.944 at the start of the content
	leadingTimestamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2})\.(\d+)`)
	// 2024-01-11T16:40:38.944Z anywhere in the content
	isoTimestamp = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})(?:\.(\d+))?(Z|[+-]\d{2}:?\d{2})?`)

	levelPattern        = regexp.MustCompile(`(?i)\b(DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|TRACE)\b`)
	leadingLevelPattern = regexp.MustCompile(`(?i)^[\[(]?(?:DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|TRACE)[\])]?:?(?:\s+|$)`)

	// (kafka.server.BrokerServer) at the end of the line
	parenLogger = regexp.MustCompile(`\(([a-zA-Z][a-zA-Z0-9.]+)\)\s*$`)
	// o.s.b.SpringApplication: or k.c.KafkaConfiguration :
	abbrevLogger = regexp.MustCompile(`(?:^|\s)((?:[a-z][a-z0-9]*\.)+[A-Z][a-zA-Z0-9$]*)\s*:`)
)

type lineParser struct {
	seq atomic.Uint64
	now func() time.Time
}

func NewLineParser() LogParser {
	return &lineParser{now: time.Now}
}

// NewLineParserWithClock is used by tests that need stable receive times.
func NewLineParserWithClock(now func() time.Time) LogParser {
	return &lineParser{now: now}
}

func (p *lineParser) Parse(line string) model.Record {
	received := p.now()
	rec := model.Record{
		ID:         fmt.Sprintf("%d-%d", received.UnixMilli(), p.seq.Add(1)),
		Raw:        line,
		Service:    model.UnknownService,
		ReceivedAt: received.UTC(),
	}

	// Escapes are stripped before the prefix match: compose colors the
	// service name itself.
	content := StripANSI(line)
	if m := servicePattern.FindStringSubmatch(content); m != nil {
		rec.Service = strings.TrimSpace(m[1])
		content = m[2]
	}
	content = strings.TrimSpace(content)

	ts, rest := extractTimestamp(content)
	rec.Timestamp = ts

	if m := levelPattern.FindStringSubmatch(rest); m != nil {
		rec.Level, _ = model.ParseLevel(m[1])
	}
	rec.Logger = extractLogger(rest)

	// A level leading the remaining content is a prefix field like the
	// timestamp; anywhere else it is part of the message.
	if loc := leadingLevelPattern.FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
	}
	rec.Message = strings.TrimSpace(rest)
	return rec
}

// ParseLines splits a newline-delimited batch and parses every non-blank line.
func ParseLines(p LogParser, input string) []model.Record {
	lines := strings.Split(input, "\n")
	records := make([]model.Record, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, p.Parse(line))
	}
	return records
}

func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// extractTimestamp tries the known layouts in order. The first match that
// parses as a real date wins and is cut out of the content.
func extractTimestamp(content string) (*time.Time, string) {
	for _, try := range []func(string) (time.Time, []int, bool){
		matchBracketed, matchLeading, matchISO,
	} {
		ts, loc, ok := try(content)
		if !ok {
			continue
		}
		rest := strings.TrimSpace(content[:loc[0]] + content[loc[1]:])
		return &ts, rest
	}
	return nil, content
}

func matchBracketed(content string) (time.Time, []int, bool) {
	return matchSpaced(bracketedTimestamp, content)
}

func matchLeading(content string) (time.Time, []int, bool) {
	return matchSpaced(leadingTimestamp, content)
}

func matchSpaced(re *regexp.Regexp, content string) (time.Time, []int, bool) {
	m := re.FindStringSubmatchIndex(content)
	if m == nil {
		return time.Time{}, nil, false
	}
	value := content[m[2]:m[3]] + " " + content[m[4]:m[5]] + "." + fraction(content[m[6]:m[7]])
	ts, err := time.ParseInLocation("2006-01-02 15:04:05.999999999", value, time.UTC)
	if err != nil {
		return time.Time{}, nil, false
	}
	return ts, m[:2], true
}

func matchISO(content string) (time.Time, []int, bool) {
	m := isoTimestamp.FindStringSubmatchIndex(content)
	if m == nil {
		return time.Time{}, nil, false
	}
	value := content[m[2]:m[3]]
	if m[4] >= 0 {
		value += "." + fraction(content[m[4]:m[5]])
	}
	var (
		ts  time.Time
		err error
	)
	if m[6] >= 0 {
		value += normalizeZone(content[m[6]:m[7]])
		ts, err = time.Parse(time.RFC3339Nano, value)
	} else {
		ts, err = time.ParseInLocation("2006-01-02T15:04:05.999999999", value, time.UTC)
	}
	if err != nil {
		return time.Time{}, nil, false
	}
	return ts.UTC(), m[:2], true
}

// fraction clamps sub-second digits to the nanosecond precision time.Parse accepts.
func fraction(digits string) string {
	if len(digits) > 9 {
		return digits[:9]
	}
	return digits
}

// normalizeZone turns "+0530" into "+05:30"; "Z" and "+05:30" pass through.
func normalizeZone(zone string) string {
	if len(zone) == 5 {
		return zone[:3] + ":" + zone[3:]
	}
	return zone
}

func extractLogger(content string) string {
	if m := parenLogger.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := abbrevLogger.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}
