package mail

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/eris-support/support-desk/internal/domain"
)

const (
	// maxBodyBytes bounds how much of a single part is read into memory.
	maxBodyBytes = 4 << 20
	maxDepth     = 8
)

// headerDecoder decodes RFC 2047 words. Unknown charsets yield the raw bytes
// which are later repaired as UTF-8.
var headerDecoder = &mime.WordDecoder{
	CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		r, err := charset.Reader(label, input)
		if err != nil {
			return input, nil
		}
		return r, nil
	},
}

// ParseMessage decodes a raw RFC 822 message into an envelope. received is the
// server arrival time; when zero the Date header is used instead.
func ParseMessage(raw []byte, received time.Time) (domain.Envelope, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return domain.Envelope{}, err
	}

	header := gomail.Header{Header: entity.Header}
	env := domain.Envelope{
		Subject:    subjectFromHeader(header),
		FromHeader: decodeHeader(header.Get("From")),
		MessageID:  strings.Trim(strings.TrimSpace(header.Get("Message-Id")), "<>"),
		ReceivedAt: received,
	}
	env.FromAddress = bareAddress(env.FromHeader)
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		env.FromName = list[0].Name
	}
	if env.ReceivedAt.IsZero() {
		if date, err := header.Date(); err == nil && !date.IsZero() {
			env.ReceivedAt = date.UTC()
		} else {
			env.ReceivedAt = time.Now().UTC()
		}
	}

	if entity.MultipartReader() == nil {
		env.Body = readPart(entity.Body)
	} else {
		env.Body, _ = firstPlainPart(entity, 0)
	}
	if id, ok := ParseTicketRef(env.Subject); ok {
		env.TicketRef = &id
	}
	return env, nil
}

// firstPlainPart walks a multipart tree depth-first and returns the first
// text/plain leaf.
func firstPlainPart(entity *message.Entity, depth int) (string, bool) {
	mr := entity.MultipartReader()
	if mr == nil {
		mediaType, _, err := entity.Header.ContentType()
		if err != nil && entity.Header.Get("Content-Type") == "" {
			mediaType = "text/plain"
		}
		if strings.EqualFold(mediaType, "text/plain") {
			return readPart(entity.Body), true
		}
		return "", false
	}
	if depth >= maxDepth {
		return "", false
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", false
		}
		if err != nil && (part == nil || !tolerable(err)) {
			return "", false
		}
		if body, ok := firstPlainPart(part, depth+1); ok {
			return body, true
		}
	}
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func subjectFromHeader(header gomail.Header) string {
	if subject, err := header.Subject(); err == nil {
		return strings.ToValidUTF8(subject, "�")
	}
	return decodeHeader(header.Get("Subject"))
}

func decodeHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		decoded = value
	}
	return strings.ToValidUTF8(decoded, "�")
}

// bareAddress returns the text between angle brackets, or the whole header.
func bareAddress(from string) string {
	start := strings.Index(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return strings.TrimSpace(from)
}

func readPart(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	return strings.ToValidUTF8(string(data), "�")
}
