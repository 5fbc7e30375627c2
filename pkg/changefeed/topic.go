package changefeed

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TopicBuilder renders "<prefix>.<channel>.<targetID>.<entity>". The prefix
// identifies the deployment and is omitted when empty.
type TopicBuilder struct {
	Prefix string
}

func (b TopicBuilder) Build(channel, targetID, entity string) string {
	parts := make([]string, 0, 4)
	if b.Prefix != "" {
		parts = append(parts, b.Prefix)
	}
	parts = append(parts, channel, targetID, entity)
	return strings.Join(parts, ".")
}

// EntityName lower-cases the first character of a schema type name:
// "TicketComment" -> "ticketComment".
func EntityName(typeName string) string {
	r, size := utf8.DecodeRuneInString(typeName)
	if r == utf8.RuneError {
		return typeName
	}
	return string(unicode.ToLower(r)) + typeName[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
