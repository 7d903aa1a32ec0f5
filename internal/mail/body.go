package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"regexp"
	"strings"
)

// extractTextBody pulls a plain-text body out of a raw RFC 822 message.
// text/plain parts win; an HTML-only message is tag-stripped as a fallback.
func extractTextBody(raw []byte) (string, error) {
	msg, errRead := netmail.ReadMessage(bytes.NewReader(raw))
	if errRead != nil {
		return "", fmt.Errorf("mail: parse message: %w", errRead)
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, errParse := mime.ParseMediaType(contentType)
	if errParse != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractFromMultipart(msg.Body, params["boundary"])
	}

	body, errDecode := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if errDecode != nil {
		return "", errDecode
	}
	if strings.HasPrefix(mediaType, "text/html") {
		return htmlToText(body), nil
	}
	return body, nil
}

// extractFromMultipart walks the parts, returning the first text/plain part
// or, failing that, the first text/html part stripped to text.
func extractFromMultipart(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", fmt.Errorf("mail: multipart message without boundary")
	}

	var htmlFallback string
	mr := multipart.NewReader(r, boundary)
	for {
		part, errNext := mr.NextPart()
		if errNext == io.EOF {
			break
		}
		if errNext != nil {
			return "", fmt.Errorf("mail: read part: %w", errNext)
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(partType, "text/plain"):
			body, errDecode := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if errDecode != nil {
				return "", errDecode
			}
			return body, nil
		case strings.HasPrefix(partType, "text/html") && htmlFallback == "":
			if body, errDecode := decodeBody(part, part.Header.Get("Content-Transfer-Encoding")); errDecode == nil {
				htmlFallback = htmlToText(body)
			}
		}
	}
	if htmlFallback != "" {
		return htmlFallback, nil
	}
	return "", fmt.Errorf("mail: no text part found")
}

// decodeBody applies the content-transfer-encoding and reads the body.
func decodeBody(r io.Reader, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	body, errRead := io.ReadAll(r)
	if errRead != nil {
		return "", fmt.Errorf("mail: decode body: %w", errRead)
	}
	return string(body), nil
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	htmlEntities = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// htmlToText is a crude tag stripper, good enough for the pattern matching
// the parser does. Statement emails worth extracting carry their fields in
// text, not markup.
func htmlToText(html string) string {
	return htmlEntities.Replace(htmlTagRe.ReplaceAllString(html, " "))
}
