package domain

import (
	"sort"
	"strconv"
	"strings"
)

// EncodeLine serializes the point into InfluxDB line protocol:
//
//	measurement,tag1=v1,tag2=v2 field1=v1,field2=v2 timestamp_ns
//
// Tags and fields are emitted in lexicographic key order so the encoding is
// stable for a given point.
func (p Point) EncodeLine() string {
	var b strings.Builder

	b.WriteString(escapeMeasurement(p.Measurement))

	for _, k := range sortedKeys(p.Tags) {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(p.Tags[k]))
	}

	b.WriteByte(' ')

	fieldKeys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)

	for i, k := range fieldKeys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		writeFieldValue(&b, p.Fields[k])
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(p.Timestamp.UnixNano(), 10))

	return b.String()
}

// EncodeLines encodes a sequence of points, one record per line.
func EncodeLines(points []Point) string {
	lines := make([]string, len(points))
	for i, p := range points {
		lines[i] = p.EncodeLine()
	}
	return strings.Join(lines, "\n")
}

func writeFieldValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
		b.WriteByte('i')
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		b.WriteByte('"')
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(val))
		b.WriteByte('"')
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	measurementEscaper = strings.NewReplacer(`,`, `\,`, ` `, `\ `)
	tagEscaper         = strings.NewReplacer(`,`, `\,`, `=`, `\=`, ` `, `\ `)
)

func escapeMeasurement(s string) string { return measurementEscaper.Replace(s) }

func escapeTag(s string) string { return tagEscaper.Replace(s) }

// SeriesKey returns the canonical identity of the point's series:
// measurement plus the sorted tag set. Windows and writer shards are keyed
// by it.
func (p Point) SeriesKey() string {
	var b strings.Builder
	b.WriteString(p.Measurement)
	for _, k := range sortedKeys(p.Tags) {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Tags[k])
	}
	return b.String()
}
