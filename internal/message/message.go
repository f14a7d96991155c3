// Package message turns raw mail text into the headers and body text the
// pipeline works with.
package message

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/mikey/doc-router/internal/core"
)

// scanLines is how many leading lines the naive header scan looks at
const scanLines = 15

// maxPartBytes caps how much of one MIME part is read
const maxPartBytes = 4 << 20

var (
	fromLine    = regexp.MustCompile(`(?im)^\s*From\s*:`)
	subjectLine = regexp.MustCompile(`(?im)^\s*Subject\s*:`)
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// LooksLikeMessage reports whether text has both a From: and a Subject: line
func LooksLikeMessage(text string) bool {
	return fromLine.MatchString(text) && subjectLine.MatchString(text)
}

// Parse reads a mail message. Well-formed RFC 5322 input is parsed properly,
// with MIME parts walked for text; anything else falls back to a scan of the
// leading lines for "Key: value" headers with the whole input kept as text.
func Parse(raw []byte) (*core.MessageContent, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil || (msg.Header.Get("From") == "" && msg.Header.Get("Subject") == "") {
		return ScanHeaders(string(raw)), nil
	}

	headers := make(map[string]string, len(msg.Header))
	for key, values := range msg.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = DecodeHeader(values[0])
	}

	text, err := extractText(textproto.MIMEHeader(msg.Header), msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return &core.MessageContent{Text: strings.TrimSpace(text), Headers: headers}, nil
}

// ScanHeaders is the lenient fallback: any "Key: value" among the first lines
// becomes a header and the full text is kept as the body.
func ScanHeaders(text string) *core.MessageContent {
	headers := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(text))
	for n := 0; n < scanLines && sc.Scan(); n++ {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		key = textproto.CanonicalMIMEHeaderKey(key)
		if _, seen := headers[key]; !seen {
			headers[key] = DecodeHeader(strings.TrimSpace(value))
		}
	}
	return &core.MessageContent{Text: strings.TrimSpace(text), Headers: headers}
}

// DecodeHeader decodes RFC 2047 encoded words, returning the input on failure
func DecodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractText prefers text/plain parts and falls back to stripped text/html
func extractText(header textproto.MIMEHeader, body io.Reader) (string, error) {
	var plain, htmlText strings.Builder
	if err := walk(header, body, &plain, &htmlText); err != nil {
		return "", err
	}
	if plain.Len() > 0 {
		return plain.String(), nil
	}
	if htmlText.Len() > 0 {
		return htmlText.String(), nil
	}
	return "", nil
}

func walk(header textproto.MIMEHeader, body io.Reader, plain, htmlText *strings.Builder) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return appendPart(plain, body, header, params)
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// Keep what was read so far from a truncated multipart body
				if plain.Len() > 0 || htmlText.Len() > 0 {
					return nil
				}
				return err
			}
			if isAttachment(part.Header) {
				continue
			}
			if err := walk(part.Header, part, plain, htmlText); err != nil {
				return err
			}
		}
	}

	switch mediaType {
	case "text/plain":
		return appendPart(plain, body, header, params)
	case "text/html":
		var raw strings.Builder
		if err := appendPart(&raw, body, header, params); err != nil {
			return err
		}
		writeSeparated(htmlText, StripHTML(raw.String()))
	}
	return nil
}

func appendPart(dst *strings.Builder, body io.Reader, header textproto.MIMEHeader, params map[string]string) error {
	decoded := transferDecoder(header.Get("Content-Transfer-Encoding"), io.LimitReader(body, maxPartBytes))
	r, err := charsetReader(params["charset"], decoded)
	if err != nil {
		r = decoded
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	writeSeparated(dst, string(data))
	return nil
}

func writeSeparated(dst *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if dst.Len() > 0 {
		dst.WriteString("\n")
	}
	dst.WriteString(text)
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

func isAttachment(header textproto.MIMEHeader) bool {
	disposition, _, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
		return input, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// newlineStripper drops CR and LF so line-wrapped base64 decodes cleanly
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	count, err := n.r.Read(p)
	kept := 0
	for _, b := range p[:count] {
		if b != '\r' && b != '\n' {
			p[kept] = b
			kept++
		}
	}
	return kept, err
}
