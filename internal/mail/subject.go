package mail

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ticketRefPattern   = regexp.MustCompile(`\[?#(\d+)\]?`)
	ticketTokenPattern = regexp.MustCompile(`#\d+`)
)

// DefaultReplySubject is used when the inbound message had no subject.
const DefaultReplySubject = "Ответ службы поддержки"

// ParseTicketRef returns the ticket id of the first "#<digits>" token in subject.
func ParseTicketRef(subject string) (int64, bool) {
	m := ticketRefPattern.FindStringSubmatch(subject)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// TagSubject prefixes "[#<id>] " unless the subject already carries a ticket token.
func TagSubject(subject string, ticketID int64) string {
	if ticketTokenPattern.MatchString(subject) {
		return subject
	}
	return fmt.Sprintf("[#%d] %s", ticketID, subject)
}

// ReplySubject builds the subject of an answer to a message with the given subject.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return DefaultReplySubject
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
