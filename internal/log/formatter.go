package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders an entry through the pattern. Supported placeholders:
// %time, %level, %field, %msg, %caller and %n (newline).
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", getCaller(entry),
		"%n", "\n",
	)
	return []byte(r.Replace(f.pattern)), nil
}

// getCaller returns file:line of the log call when caller reporting is on.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "-"
	}
	file := entry.Caller.File
	if idx := strings.LastIndex(file, "/"); idx != -1 && idx+1 < len(file) {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, entry.Caller.Line)
}

// buildFields renders fields as k=v pairs sorted by key, so lines are stable.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		val := entry.Data[k]
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, k+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
