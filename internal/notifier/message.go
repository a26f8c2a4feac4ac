package notifier

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
)

// headerReplacer strips line breaks so header values cannot inject headers.
var headerReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// buildMIMEMessage renders req as a single-part text/plain RFC 5322 message.
func buildMIMEMessage(req NotificationRequest) ([]byte, error) {
	var buf bytes.Buffer

	headers := []struct {
		name  string
		value string
	}{
		{"From", req.From},
		{"To", req.To},
		{"Subject", mime.QEncoding.Encode("utf-8", headerReplacer.Replace(req.Subject))},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
		{"Content-Transfer-Encoding", "quoted-printable"},
	}

	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.name, headerReplacer.Replace(h.value))
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(req.Body)); err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}

	return buf.Bytes(), nil
}

// encodeRawMessage renders req and base64url-encodes it for the Gmail API.
func encodeRawMessage(req NotificationRequest) (string, error) {
	message, err := buildMIMEMessage(req)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(message), nil
}
