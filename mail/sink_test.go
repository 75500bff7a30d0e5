// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/grainhost/httpbridge/lib/schema"
)

func testEmail() schema.Email {
	return schema.Email{
		Date:      time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC).UnixNano(),
		From:      schema.EmailAddress{Address: "sender@example.com", Name: "Sender"},
		To:        []schema.EmailAddress{{Address: "app@grain.example", Name: "App"}},
		CC:        []schema.EmailAddress{{Address: "cc@example.com"}},
		Subject:   "Greetings",
		MessageID: "msg-1@example.com",
		InReplyTo: []string{"msg-0@example.com"},
		Text:      "plain body",
		HTML:      "<p>rich body</p>",
		Attachments: []schema.EmailAttachment{{
			ContentType:        "application/pdf",
			ContentDisposition: "attachment; filename=report.pdf",
			ContentID:          "att-1",
			Content:            []byte("%PDF-fake"),
		}},
	}
}

// deliveredFile returns the single message in the maildir's new/
// directory.
func deliveredFile(t *testing.T, root string) string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, "new"))
	if err != nil {
		t.Fatalf("reading maildir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "_") {
		t.Errorf("delivered file %q missing underscore prefix", name)
	}
	return filepath.Join(root, "new", name)
}

func TestSendDeliversToMaildir(t *testing.T) {
	root := t.TempDir()
	sink := NewSink(root, nil)

	if err := sink.Send(context.Background(), testEmail()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	path := deliveredFile(t, root)

	// tmp/ must be empty after the atomic rename.
	tmpEntries, err := os.ReadDir(filepath.Join(root, "tmp"))
	if err != nil {
		t.Fatalf("reading tmp: %v", err)
	}
	if len(tmpEntries) != 0 {
		t.Errorf("tmp/ still holds %d files", len(tmpEntries))
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening delivered message: %v", err)
	}
	defer file.Close()

	reader, err := gomail.CreateReader(file)
	if err != nil {
		t.Fatalf("parsing delivered message: %v", err)
	}

	subject, err := reader.Header.Subject()
	if err != nil || subject != "Greetings" {
		t.Errorf("subject: got %q, %v", subject, err)
	}
	to, err := reader.Header.AddressList("To")
	if err != nil || len(to) != 1 || to[0].Address != "app@grain.example" {
		t.Errorf("to: got %v, %v", to, err)
	}
	from, err := reader.Header.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Name != "Sender" {
		t.Errorf("from: got %v, %v", from, err)
	}

	var sawText, sawHTML, sawAttachment bool
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			t.Fatalf("reading part: %v", err)
		}
		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := header.ContentType()
			switch contentType {
			case "text/plain":
				sawText = true
				if string(body) != "plain body" {
					t.Errorf("text part: got %q", body)
				}
			case "text/html":
				sawHTML = true
				if string(body) != "<p>rich body</p>" {
					t.Errorf("html part: got %q", body)
				}
			}
		case *gomail.AttachmentHeader:
			sawAttachment = true
			contentType, _, _ := header.ContentType()
			if contentType != "application/pdf" {
				t.Errorf("attachment type: got %q", contentType)
			}
			if string(body) != "%PDF-fake" {
				t.Errorf("attachment body: got %q", body)
			}
		}
	}
	if !sawText || !sawHTML || !sawAttachment {
		t.Errorf("parts seen: text=%v html=%v attachment=%v", sawText, sawHTML, sawAttachment)
	}
}

func TestSendTextOnly(t *testing.T) {
	root := t.TempDir()
	sink := NewSink(root, nil)

	err := sink.Send(context.Background(), schema.Email{
		From:    schema.EmailAddress{Address: "a@example.com"},
		To:      []schema.EmailAddress{{Address: "b@example.com"}},
		Subject: "minimal",
		Text:    "just text",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	deliveredFile(t, root)
}

func TestSendUniqueFilenames(t *testing.T) {
	root := t.TempDir()
	sink := NewSink(root, nil)

	for i := 0; i < 3; i++ {
		if err := sink.Send(context.Background(), testEmail()); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(root, "new"))
	if err != nil {
		t.Fatalf("reading maildir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(entries))
	}
}

func TestRandomIDAlphabet(t *testing.T) {
	for i := 0; i < 32; i++ {
		id, err := randomID()
		if err != nil {
			t.Fatalf("randomID: %v", err)
		}
		if len(id) != 22 {
			t.Fatalf("id length: got %d (%q)", len(id), id)
		}
		for _, c := range id {
			if !strings.ContainsRune(mailIDDigits, c) {
				t.Fatalf("id %q contains %q outside the alphabet", id, c)
			}
		}
	}
}
