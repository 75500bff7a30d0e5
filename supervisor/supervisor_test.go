// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestStartRequiresCommand(t *testing.T) {
	supervised := &Supervisor{Port: 1234}
	if err := supervised.Start(); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestStartUnknownBinary(t *testing.T) {
	supervised := &Supervisor{Port: 1234, Command: []string{"/nonexistent/app-server"}}
	if err := supervised.Start(); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestWaitReportsExitStatus(t *testing.T) {
	supervised := &Supervisor{Port: 1234, Command: []string{"sh", "-c", "exit 7"}}
	if err := supervised.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := supervised.Wait()
	if err == nil {
		t.Fatal("Wait must always report the app's exit")
	}
	if !strings.Contains(err.Error(), "status code: 7") {
		t.Errorf("diagnostic: got %q", err)
	}
}

func TestWaitReportsCleanExitToo(t *testing.T) {
	supervised := &Supervisor{Port: 1234, Command: []string{"sh", "-c", "exit 0"}}
	if err := supervised.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := supervised.Wait()
	if err == nil || !strings.Contains(err.Error(), "status code: 0") {
		t.Errorf("diagnostic: got %v", err)
	}
}

func TestWaitReady(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	supervised := &Supervisor{Port: port}
	if err := supervised.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReadyHonorsCancellation(t *testing.T) {
	// Grab a port with nothing listening on it.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	supervised := &Supervisor{Port: port}
	if err := supervised.WaitReady(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestWaitReadyAfterDelayedListen(t *testing.T) {
	// Reserve a port, release it, and bring the listener up shortly
	// after WaitReady starts polling.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		delayed, listenErr := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if listenErr != nil {
			return
		}
		for {
			conn, acceptErr := delayed.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	supervised := &Supervisor{Port: port}
	if err := supervised.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}
