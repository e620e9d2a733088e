// ABOUTME: Resolves the readable text of a Gmail message from its MIME payload
// ABOUTME: Decodes base64url body data and reads headers such as the subject
package sync

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// ExtractPlainText returns the message text. Inline data on the top-level
// payload wins; otherwise the first text/plain part found depth-first is
// used. An empty string means nothing extractable.
func ExtractPlainText(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}

	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		return decodeBody(msg.Payload.Body.Data)
	}

	return findPlainText(msg.Payload.Parts)
}

func findPlainText(parts []*gmail.MessagePart) string {
	for _, part := range parts {
		if part == nil {
			continue
		}
		hasData := part.Body != nil && part.Body.Data != ""
		if part.MimeType == "text/plain" && hasData {
			return decodeBody(part.Body.Data)
		}
		if !hasData && len(part.Parts) > 0 {
			if text := findPlainText(part.Parts); text != "" {
				return text
			}
		}
	}
	return ""
}

// decodeBody decodes base64url data, tolerating missing padding.
func decodeBody(data string) string {
	data = strings.NewReplacer("-", "+", "_", "/").Replace(data)
	data = strings.TrimRight(data, "=")

	decoded, err := base64.RawStdEncoding.DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// Header returns the value of the named header, case-insensitively.
func Header(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
