// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/grainhost/httpbridge/lib/schema"
	"github.com/grainhost/httpbridge/lib/testutil"
)

// uploadApp reads one request's header block, then body bytes until
// the connection or the framing ends, reports both, and answers 200.
func uploadApp(t *testing.T, headers chan<- string, bodies chan<- string) string {
	return fakeApp(t, func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		block, ok := readHeaderBlock(reader)
		if !ok {
			return
		}
		headers <- block

		// Read failures below are expected when a test aborts the
		// upload mid-flight; the server side just gives up.
		var body []byte
		if strings.Contains(block, "Transfer-Encoding: chunked\r\n") {
			for {
				sizeLine, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				size, err := parseChunkSize(strings.TrimRight(sizeLine, "\r\n"))
				if err != nil {
					return
				}
				if size == 0 {
					reader.ReadString('\n') // trailing CRLF
					break
				}
				chunk := make([]byte, size)
				if _, err := io.ReadFull(reader, chunk); err != nil {
					return
				}
				body = append(body, chunk...)
				reader.ReadString('\n') // chunk CRLF
			}
		} else {
			length := 0
			for _, line := range strings.Split(block, "\r\n") {
				if value, ok := strings.CutPrefix(line, "Content-Length: "); ok {
					length, _ = parseDecimal(value)
				}
			}
			buffered := make([]byte, length)
			if _, err := io.ReadFull(reader, buffered); err != nil {
				return
			}
			body = buffered
		}

		bodies <- string(body)
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	})
}

func parseDecimal(s string) (int, bool) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func startUpload(t *testing.T, addr string) *RequestStream {
	t.Helper()
	session := webSessionAt(t, addr)
	stream, err := session.PostStreaming(context.Background(), "/upload", "application/octet-stream", "", schema.RequestContext{}, newCollectSink())
	if err != nil {
		t.Fatalf("PostStreaming: %v", err)
	}
	t.Cleanup(stream.Release)
	return stream
}

func TestStreamingUploadWithExpectSize(t *testing.T) {
	headers := make(chan string, 1)
	bodies := make(chan string, 1)
	stream := startUpload(t, uploadApp(t, headers, bodies))
	ctx := context.Background()

	if err := stream.ExpectSize(ctx, 10); err != nil {
		t.Fatalf("ExpectSize: %v", err)
	}
	if err := stream.Write(ctx, []byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := stream.Write(ctx, []byte("efghij")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := stream.Done(ctx); err != nil {
		t.Fatalf("Done: %v", err)
	}

	block := testutil.RequireReceive(t, headers, 5*time.Second, "waiting for headers")
	if !strings.Contains(block, "Content-Length: 10\r\n") {
		t.Errorf("missing Content-Length in:\n%s", block)
	}
	if strings.Contains(block, "Transfer-Encoding") {
		t.Errorf("unexpected chunking in:\n%s", block)
	}
	if body := testutil.RequireReceive(t, bodies, 5*time.Second, "waiting for body"); body != "abcdefghij" {
		t.Errorf("body: got %q", body)
	}

	response, handle, err := stream.GetResponse(ctx)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if handle != nil {
		t.Error("unexpected stream handle")
	}
	if response.Content == nil || response.Content.StatusCode != schema.SuccessOK {
		t.Fatalf("response: got %+v", response)
	}
}

func TestStreamingUploadChunked(t *testing.T) {
	headers := make(chan string, 1)
	bodies := make(chan string, 1)
	stream := startUpload(t, uploadApp(t, headers, bodies))
	ctx := context.Background()

	if err := stream.Write(ctx, []byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := stream.Write(ctx, []byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := stream.Done(ctx); err != nil {
		t.Fatalf("Done: %v", err)
	}

	block := testutil.RequireReceive(t, headers, 5*time.Second, "waiting for headers")
	if !strings.Contains(block, "Transfer-Encoding: chunked\r\n") {
		t.Errorf("missing chunked framing in:\n%s", block)
	}
	if body := testutil.RequireReceive(t, bodies, 5*time.Second, "waiting for body"); body != "hello world" {
		t.Errorf("body: got %q", body)
	}
}

func TestStreamingUploadEmptyDone(t *testing.T) {
	headers := make(chan string, 1)
	bodies := make(chan string, 1)
	stream := startUpload(t, uploadApp(t, headers, bodies))

	if err := stream.Done(context.Background()); err != nil {
		t.Fatalf("Done: %v", err)
	}
	block := testutil.RequireReceive(t, headers, 5*time.Second, "waiting for headers")
	if !strings.Contains(block, "Content-Length: 0\r\n") {
		t.Errorf("empty upload should declare zero length:\n%s", block)
	}
	if body := testutil.RequireReceive(t, bodies, 5*time.Second, "waiting for body"); body != "" {
		t.Errorf("body: got %q", body)
	}
}

func TestStreamingUploadContractViolations(t *testing.T) {
	ctx := context.Background()

	t.Run("write after done", func(t *testing.T) {
		stream := startUpload(t, uploadApp(t, make(chan string, 1), make(chan string, 1)))
		if err := stream.Done(ctx); err != nil {
			t.Fatalf("Done: %v", err)
		}
		if err := stream.Write(ctx, []byte("late")); err == nil {
			t.Fatal("expected error for write after done")
		}
	})

	t.Run("done twice", func(t *testing.T) {
		stream := startUpload(t, uploadApp(t, make(chan string, 1), make(chan string, 1)))
		if err := stream.Done(ctx); err != nil {
			t.Fatalf("Done: %v", err)
		}
		if err := stream.Done(ctx); err == nil {
			t.Fatal("expected error for second done")
		}
	})

	t.Run("more bytes than expected", func(t *testing.T) {
		stream := startUpload(t, uploadApp(t, make(chan string, 1), make(chan string, 1)))
		if err := stream.ExpectSize(ctx, 3); err != nil {
			t.Fatalf("ExpectSize: %v", err)
		}
		if err := stream.Write(ctx, []byte("toolong")); err == nil {
			t.Fatal("expected error for oversized write")
		}
	})

	t.Run("done before expected bytes", func(t *testing.T) {
		stream := startUpload(t, uploadApp(t, make(chan string, 1), make(chan string, 1)))
		if err := stream.ExpectSize(ctx, 8); err != nil {
			t.Fatalf("ExpectSize: %v", err)
		}
		if err := stream.Write(ctx, []byte("four")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := stream.Done(ctx); err == nil {
			t.Fatal("expected error for short upload")
		}
	})
}

func TestGetResponseBeforeDone(t *testing.T) {
	// The app answers as soon as it has the headers, while the upload
	// is still open.
	addr := fakeApp(t, func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		readHeaderBlock(reader)
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
		// Keep draining the upload until the client releases.
		io.Copy(io.Discard, reader)
	})
	stream := startUpload(t, addr)
	ctx := context.Background()

	if err := stream.Write(ctx, []byte("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	response, _, err := stream.GetResponse(ctx)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if response.Content == nil || string(response.Content.Body.Bytes) != "ok" {
		t.Fatalf("response: got %+v", response)
	}

	// The upload continues after the response arrived.
	if err := stream.Write(ctx, []byte("second")); err != nil {
		t.Fatalf("Write after response: %v", err)
	}
	if err := stream.Done(ctx); err != nil {
		t.Fatalf("Done: %v", err)
	}

	if _, _, err := stream.GetResponse(ctx); err == nil {
		t.Fatal("expected error for second getResponse")
	}
}
