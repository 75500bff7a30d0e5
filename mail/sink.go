// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/grainhost/httpbridge/lib/schema"
)

// DefaultRoot is the standard maildir location inside the sandbox.
const DefaultRoot = "/var/mail"

// Sink receives structured email messages and writes each into a
// maildir under its root directory.
type Sink struct {
	root   string
	logger *slog.Logger
}

// NewSink returns a sink delivering into root. A nil logger means
// slog.Default().
func NewSink(root string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{root: root, logger: logger}
}

// Release implements the session capability surface; an email session
// holds no per-session state.
func (s *Sink) Release() {}

// Send writes one incoming email into the maildir: first to
// tmp/_<id>, then atomically renamed to new/_<id>. The filename is
// prefixed with _ in case the random id starts with a dot.
func (s *Sink) Send(ctx context.Context, email schema.Email) error {
	id, err := randomID()
	if err != nil {
		return fmt.Errorf("generating mail id: %w", err)
	}

	message, err := formatMessage(email)
	if err != nil {
		return fmt.Errorf("formatting mail message: %w", err)
	}

	tmpDirectory := filepath.Join(s.root, "tmp")
	newDirectory := filepath.Join(s.root, "new")
	for _, directory := range []string{tmpDirectory, newDirectory} {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return fmt.Errorf("creating maildir: %w", err)
		}
	}

	tmpPath := filepath.Join(tmpDirectory, "_"+id)
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating mail file: %w", err)
	}
	if _, err := file.Write(message); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing mail file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing mail file: %w", err)
	}

	newPath := filepath.Join(newDirectory, "_"+id)
	if err := os.Rename(tmpPath, newPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("delivering mail file: %w", err)
	}

	s.logger.Debug("mail delivered", "path", newPath, "subject", email.Subject)
	return nil
}

// formatMessage assembles the MIME message: the standard headers, the
// text and HTML alternatives when present, and base64-encoded
// attachments.
func formatMessage(email schema.Email) ([]byte, error) {
	var header gomail.Header

	if email.Date != 0 {
		header.SetDate(time.Unix(0, email.Date).UTC())
	}
	setAddressHeader(&header, "To", email.To)
	if email.From.Address != "" {
		setAddressHeader(&header, "From", []schema.EmailAddress{email.From})
	}
	if email.ReplyTo.Address != "" {
		setAddressHeader(&header, "Reply-To", []schema.EmailAddress{email.ReplyTo})
	}
	setAddressHeader(&header, "Cc", email.CC)
	setAddressHeader(&header, "Bcc", email.BCC)
	if email.Subject != "" {
		header.SetSubject(email.Subject)
	}
	if email.MessageID != "" {
		header.SetMessageID(email.MessageID)
	}
	if len(email.References) > 0 {
		header.SetMsgIDList("References", email.References)
	}
	if len(email.InReplyTo) > 0 {
		header.SetMsgIDList("In-Reply-To", email.InReplyTo)
	}

	var buffer bytes.Buffer
	writer, err := gomail.CreateWriter(&buffer, header)
	if err != nil {
		return nil, err
	}

	if email.Text != "" || email.HTML != "" {
		inline, err := writer.CreateInline()
		if err != nil {
			return nil, err
		}
		if email.Text != "" {
			var partHeader gomail.InlineHeader
			partHeader.SetContentType("text/plain", map[string]string{"charset": "UTF-8"})
			part, err := inline.CreatePart(partHeader)
			if err != nil {
				return nil, err
			}
			if _, err := part.Write([]byte(email.Text)); err != nil {
				return nil, err
			}
			part.Close()
		}
		if email.HTML != "" {
			var partHeader gomail.InlineHeader
			partHeader.SetContentType("text/html", map[string]string{"charset": "UTF-8"})
			part, err := inline.CreatePart(partHeader)
			if err != nil {
				return nil, err
			}
			if _, err := part.Write([]byte(email.HTML)); err != nil {
				return nil, err
			}
			part.Close()
		}
		inline.Close()
	}

	for _, attachment := range email.Attachments {
		var attachmentHeader gomail.AttachmentHeader
		if attachment.ContentType != "" {
			attachmentHeader.Set("Content-Type", attachment.ContentType)
		}
		if attachment.ContentDisposition != "" {
			attachmentHeader.Set("Content-Disposition", attachment.ContentDisposition)
		}
		if attachment.ContentID != "" {
			attachmentHeader.Set("Content-Id", "<"+attachment.ContentID+">")
		}
		attachmentHeader.Set("Content-Transfer-Encoding", "base64")
		part, err := writer.CreateAttachment(attachmentHeader)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(attachment.Content); err != nil {
			return nil, err
		}
		part.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func setAddressHeader(header *gomail.Header, key string, addresses []schema.EmailAddress) {
	if len(addresses) == 0 {
		return
	}
	list := make([]*gomail.Address, len(addresses))
	for i, address := range addresses {
		list[i] = &gomail.Address{Name: address.Name, Address: address.Address}
	}
	header.SetAddressList(key, list)
}

// mailIDDigits is the base64 alphabet used for mail ids: every digit
// is safe in both a MIME boundary and a filename.
const mailIDDigits = "0123456789" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz_."

// randomID returns 128 random bits encoded with mailIDDigits.
func randomID() (string, error) {
	var random [16]byte
	if _, err := rand.Read(random[:]); err != nil {
		return "", err
	}

	var id []byte
	var buffer, bufferBits uint
	for _, b := range random {
		buffer |= uint(b) << bufferBits
		bufferBits += 8
		for bufferBits >= 6 {
			id = append(id, mailIDDigits[buffer&63])
			buffer >>= 6
			bufferBits -= 6
		}
	}
	id = append(id, mailIDDigits[buffer&63])
	return string(id), nil
}
