package logformatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/peer-calls/meetings/client/logger"
)

// CtxKeyMeetingID is printed in its own column instead of as a key=value pair.
const CtxKeyMeetingID = "meeting_id"

const (
	namespaceWidth = 20
	timeLayout     = "2006-01-02T15:04:05.000000Z07:00"
)

// LogFormatter formats messages for console output.
type LogFormatter struct{}

var _ logger.Formatter = &LogFormatter{}

func New() *LogFormatter {
	return &LogFormatter{}
}

func (f *LogFormatter) Format(message logger.Message) ([]byte, error) {
	keys := make([]string, 0, len(message.Ctx))

	for k := range message.Ctx {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var (
		b         strings.Builder
		meetingID string
	)

	for _, k := range keys {
		v := message.Ctx[k]

		if k == CtxKeyMeetingID {
			meetingID = fmt.Sprintf("%s", v)

			continue
		}

		fmt.Fprintf(&b, " %s=%+v", k, v)
	}

	namespace := message.Namespace
	if len(namespace) > namespaceWidth {
		namespace = namespace[len(namespace)-namespaceWidth:]
	}

	body := strings.TrimRight(message.Body, "\n")

	if meetingID != "" {
		body = "[" + meetingID + "] " + body
	}

	line := fmt.Sprintf("%s %5s [%*s] %s%s\n",
		message.Timestamp.Format(timeLayout),
		message.Level,
		namespaceWidth,
		namespace,
		body,
		b.String(),
	)

	return []byte(line), nil
}
