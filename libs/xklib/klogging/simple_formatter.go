package klogging

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// SimpleFormatter prints one line per entry: time LEVEL event=.. msg=.. k=v...
// Keys after msg are sorted so lines diff cleanly.
type SimpleFormatter struct{}

func NewSimpleFormatter() logrus.Formatter {
	return &SimpleFormatter{}
}

func (f *SimpleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(strings.ToUpper(entry.Level.String()))
	if event, ok := entry.Data["event"]; ok {
		sb.WriteString(" event=")
		sb.WriteString(fmt.Sprintf("%v", event))
	}
	sb.WriteString(" msg=")
	sb.WriteString(QuoteIfNeeded(entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "event" || k == "time" || k == "level" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(formatField(entry.Data[k]))
	}
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}

func formatField(v interface{}) string {
	switch val := v.(type) {
	case string:
		return QuoteIfNeeded(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case error:
		return QuoteIfNeeded(val.Error())
	default:
		return QuoteIfNeeded(fmt.Sprintf("%v", v))
	}
}

// QuoteIfNeeded drops newlines and single-quotes values that are empty or contain spaces.
func QuoteIfNeeded(v string) string {
	v = strings.ReplaceAll(v, "\n", "")
	if v == "" || strings.Contains(v, " ") {
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	}
	return v
}
