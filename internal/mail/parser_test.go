package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseMessagePlain(t *testing.T) {
	received := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := crlf(
		"From: Ivan Petrov <ivan@example.com>",
		"To: support@example.com",
		"Subject: Need help",
		"Message-Id: <abc-1@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Device 230111222 does not start.",
	)

	env, err := ParseMessage(raw, received)
	require.NoError(t, err)
	require.Equal(t, "Need help", env.Subject)
	require.Equal(t, "Ivan Petrov <ivan@example.com>", env.FromHeader)
	require.Equal(t, "ivan@example.com", env.FromAddress)
	require.Equal(t, "Ivan Petrov", env.FromName)
	require.Equal(t, "abc-1@example.com", env.MessageID)
	require.Equal(t, "Device 230111222 does not start.", env.Body)
	require.Equal(t, received, env.ReceivedAt)
	require.False(t, env.HasTicketRef())
}

func TestParseMessageEncodedHeadersAndCharset(t *testing.T) {
	raw := crlf(
		"From: =?UTF-8?B?0JjQstCw0L0g0J/QtdGC0YDQvtCy?= <ivan@example.com>",
		"Subject: =?UTF-8?B?0J3Rg9C20L3QsCDQv9C+0LzQvtGJ0Yw=?=",
		"Date: Mon, 03 Mar 2025 09:15:00 +0300",
		"Content-Type: text/plain; charset=koi8-r",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"=F0=D2=C9=C2=CF=D2 =CE=C5 =D2=C1=C2=CF=D4=C1=C5=D4",
	)

	env, err := ParseMessage(raw, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "Нужна помощь", env.Subject)
	require.Equal(t, "Иван Петров <ivan@example.com>", env.FromHeader)
	require.Equal(t, "ivan@example.com", env.FromAddress)
	require.Equal(t, "Прибор не работает", env.Body)
	require.Equal(t, time.Date(2025, 3, 3, 6, 15, 0, 0, time.UTC), env.ReceivedAt)
}

func TestParseMessageMultipartPrefersPlainText(t *testing.T) {
	raw := crlf(
		"From: client@example.com",
		"Subject: [#42] Re: your ticket",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html body</p>",
		"--inner",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain body",
		"--inner--",
		"--outer",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=report.pdf",
		"",
		"%PDF-1.4",
		"--outer--",
		"",
	)

	env, err := ParseMessage(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, "plain body", env.Body)
	require.Equal(t, "client@example.com", env.FromAddress)
	require.True(t, env.HasTicketRef())
	require.EqualValues(t, 42, *env.TicketRef)
}

func TestParseMessageMultipartWithoutPlainText(t *testing.T) {
	raw := crlf(
		"From: client@example.com",
		"Subject: html only",
		`Content-Type: multipart/alternative; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>hi</p>",
		"--b--",
		"",
	)

	env, err := ParseMessage(raw, time.Now())
	require.NoError(t, err)
	require.Empty(t, env.Body)
}

func TestParseMessageUnknownCharsetFallsBackToLossyUTF8(t *testing.T) {
	raw := crlf(
		"From: client@example.com",
		"Subject: =?x-unknown?Q?caf=C3=A9?=",
		"Content-Type: text/plain; charset=x-unknown-charset",
		"",
		"caf\xc3\xa9 \xff broken",
	)

	env, err := ParseMessage(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, "café", env.Subject)
	require.Equal(t, "café � broken", env.Body)
}

func TestBareAddress(t *testing.T) {
	require.Equal(t, "a@b.c", bareAddress("Name <a@b.c>"))
	require.Equal(t, "a@b.c", bareAddress(" a@b.c "))
	require.Equal(t, "broken <", bareAddress("broken <"))
}
