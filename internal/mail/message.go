// Package mail ingests emailed tickets: raw messages are parsed, PDF
// attachments of verified senders become pending expenses, and the
// employee is told to confirm or discard them.
package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"
)

// Attachment is one file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the parsed form of a raw RFC 822 message.
type Message struct {
	Subject     string
	From        string
	Date        time.Time
	Body        string
	Attachments []Attachment
}

// header is satisfied by both net/mail.Header and textproto.MIMEHeader.
type header interface {
	Get(key string) string
}

// ParseMessage parses a raw message, walking nested multiparts to collect
// the first text body and every named attachment.
func ParseMessage(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	m := &Message{Subject: msg.Header.Get("Subject")}
	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		m.From = addr.Address
	}
	if date, err := msg.Header.Date(); err == nil {
		m.Date = date
	}

	if err := walkPart(msg.Header, msg.Body, m); err != nil {
		return nil, err
	}
	return m, nil
}

func walkPart(h header, body io.Reader, m *Message) error {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading multipart: %w", err)
			}
			if err := walkPart(part.Header, part, m); err != nil {
				return err
			}
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading part: %w", err)
	}
	if strings.EqualFold(h.Get("Content-Transfer-Encoding"), "base64") {
		cleaned := strings.Map(dropSpace, string(data))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return fmt.Errorf("decoding base64 part: %w", err)
		}
		data = decoded
	}

	if filename := partFilename(h, params); filename != "" {
		m.Attachments = append(m.Attachments, Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Data:        data,
		})
		return nil
	}

	if strings.HasPrefix(mediaType, "text/") && m.Body == "" {
		m.Body = strings.TrimSpace(string(data))
	}
	return nil
}

func partFilename(h header, contentTypeParams map[string]string) string {
	if disposition := h.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return contentTypeParams["name"]
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\r', '\n':
		return -1
	}
	return r
}
