package smtpx

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

// pipeSession wires a Session to a scripted peer over an in-memory pipe.
func pipeSession(t *testing.T, peer func(conn net.Conn)) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go peer(server)
	return NewSession(client)
}

func TestReadReply_SingleLine(t *testing.T) {
	s := pipeSession(t, func(conn net.Conn) {
		conn.Write([]byte("220 mx.example.com ESMTP\r\n"))
	})
	code, msg, err := s.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if code != 220 || msg != "mx.example.com ESMTP" {
		t.Fatalf("got %d %q", code, msg)
	}
}

func TestReadReply_Multiline(t *testing.T) {
	s := pipeSession(t, func(conn net.Conn) {
		conn.Write([]byte("250-mx.example.com\r\n250-PIPELINING\r\n250 STARTTLS\r\n"))
	})
	code, msg, err := s.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if code != 250 {
		t.Fatalf("got code %d", code)
	}
	if msg != "mx.example.com\nPIPELINING\nSTARTTLS" {
		t.Fatalf("got %q", msg)
	}
}

func TestReadReply_BareCode(t *testing.T) {
	s := pipeSession(t, func(conn net.Conn) {
		conn.Write([]byte("354\r\n"))
	})
	code, msg, err := s.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if code != 354 || msg != "" {
		t.Fatalf("got %d %q", code, msg)
	}
}

func TestReadReply_Garbage(t *testing.T) {
	s := pipeSession(t, func(conn net.Conn) {
		conn.Write([]byte("oops no code here\r\n"))
	})
	if _, _, err := s.ReadReply(); err == nil {
		t.Fatal("want parse error")
	}
}

func TestEhlo_ParsesExtensions(t *testing.T) {
	s := pipeSession(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		if !strings.HasPrefix(line, "EHLO probe.example") {
			t.Errorf("got %q", line)
		}
		conn.Write([]byte("250-mx.example.com greets you\r\n" +
			"250-SIZE 35882577\r\n" +
			"250-starttls\r\n" +
			"250 HELP\r\n"))
	})

	code, ext, err := s.Ehlo("probe.example")
	if err != nil {
		t.Fatal(err)
	}
	if code != 250 {
		t.Fatalf("got code %d", code)
	}
	if _, ok := ext["STARTTLS"]; !ok {
		t.Fatalf("lower-case starttls must be recognized, ext=%v", ext)
	}
	if ext["SIZE"] != "35882577" {
		t.Fatalf("want SIZE parameter, got %q", ext["SIZE"])
	}
	if _, ok := ext["MX.EXAMPLE.COM"]; ok {
		t.Fatal("greeting line must not become an extension")
	}
}

func TestData_DotStuffing(t *testing.T) {
	var received string
	done := make(chan struct{})
	s := pipeSession(t, func(conn net.Conn) {
		defer close(done)
		r := bufio.NewReader(conn)
		if _, err := r.ReadString('\n'); err != nil { // DATA
			return
		}
		conn.Write([]byte("354 go ahead\r\n"))
		var b strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if line == ".\r\n" {
				break
			}
			b.WriteString(line)
		}
		received = b.String()
		conn.Write([]byte("250 queued\r\n"))
	})

	if err := s.Data([]byte("first line\r\n.hidden dot\r\nlast")); err != nil {
		t.Fatal(err)
	}
	<-done
	if !strings.Contains(received, "..hidden dot") {
		t.Fatalf("leading dot must be stuffed, got %q", received)
	}
}

func TestAuthPlain_Rejected(t *testing.T) {
	s := pipeSession(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		if !strings.HasPrefix(line, "AUTH PLAIN ") {
			t.Errorf("got %q", line)
		}
		conn.Write([]byte("535 bad credentials\r\n"))
	})
	if err := s.AuthPlain("u", "p"); err == nil {
		t.Fatal("want auth error")
	}
}
