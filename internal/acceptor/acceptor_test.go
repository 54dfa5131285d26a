package acceptor

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestAcceptorDispatchesConnectionsToHandler(t *testing.T) {
	received := make(chan string, 1)

	a := &Acceptor{
		Addr: "127.0.0.1:0",
		Handle: func(conn net.Conn) {
			buf := make([]byte, 16)
			n, _ := conn.Read(buf)
			received <- string(buf[:n])
			conn.Close()
		},
	}

	if err := a.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer a.Close()

	addr := a.listener.Addr().String()
	go a.Run()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("hello"))

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("expected %q, got %q", "hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler to run")
	}
}

func TestAcceptorLimiterRejectsOverCapacity(t *testing.T) {
	hold := make(chan struct{})
	a := &Acceptor{
		Addr: "127.0.0.1:0",
		Handle: func(conn net.Conn) {
			<-hold
			conn.Close()
		},
		Limiter: NewLimiter(1),
	}
	if err := a.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer a.Close()
	defer close(hold)

	addr := a.listener.Addr().String()
	go a.Run()

	first, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer first.Close()
	time.Sleep(50 * time.Millisecond) // let the acceptor admit the first connection

	second, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = second.Read(buf)
	if err == nil {
		t.Fatalf("expected second connection to be closed by the limiter")
	}
}
