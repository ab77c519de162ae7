package dbserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nxslink/beatlink/wire"
)

// fakeServer drives the far end of a net.Pipe() connection, playing the
// role of a player's database server for handshake/request tests.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
}

func (s *fakeServer) expectGreeting() {
	f, err := wire.ReadField(s.conn)
	if err != nil {
		s.t.Fatalf("server: reading greeting: %v", err)
	}
	v, err := wire.AsNumber(f)
	if err != nil || v != wire.GreetingValue {
		s.t.Fatalf("server: unexpected greeting %v", f)
	}
	if err := wire.WriteField(s.conn, wire.NewNumberField(4, wire.GreetingValue)); err != nil {
		s.t.Fatalf("server: replying to greeting: %v", err)
	}
}

func (s *fakeServer) expectSetup(targetPlayer int) {
	msg, err := wire.Decode(s.conn)
	if err != nil {
		s.t.Fatalf("server: reading setup request: %v", err)
	}
	if msg.Type != wire.MessageTypeSetupReq {
		s.t.Fatalf("server: expected SETUP_REQ, got 0x%04x", msg.Type)
	}
	reply, err := wire.NewMessage(msg.Transaction, wire.MessageTypeMenuAvailable,
		wire.NewNumberField(4, 0),
		wire.NewNumberField(4, uint32(targetPlayer)),
	)
	if err != nil {
		s.t.Fatalf("server: building setup reply: %v", err)
	}
	if err := wire.Encode(s.conn, reply); err != nil {
		s.t.Fatalf("server: sending setup reply: %v", err)
	}
}

func dialFake(t *testing.T, posingAs, target int) (*Client, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := &fakeServer{t: t, conn: serverConn}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.expectGreeting()
		srv.expectSetup(target)
	}()

	dialer := func(_ context.Context, _ string) (net.Conn, error) {
		return clientConn, nil
	}
	c, err := Dial(context.Background(), dialer, "fake:1051", posingAs, target, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	<-done
	return c, srv
}

func TestClientHandshakeSucceeds(t *testing.T) {
	c, _ := dialFake(t, 3, 2)
	defer c.Close()
}

func TestClientHandshakeRejectsWrongPlayer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	srv := &fakeServer{t: t, conn: serverConn}

	go func() {
		srv.expectGreeting()
		msg, err := wire.Decode(srv.conn)
		if err != nil {
			return
		}
		reply, _ := wire.NewMessage(msg.Transaction, wire.MessageTypeMenuAvailable,
			wire.NewNumberField(4, 0),
			wire.NewNumberField(4, 99),
		)
		wire.Encode(srv.conn, reply)
	}()

	dialer := func(_ context.Context, _ string) (net.Conn, error) { return clientConn, nil }
	_, err := Dial(context.Background(), dialer, "fake:1051", 3, 2, nil)
	if err == nil {
		t.Fatal("expected Dial to fail when the player replies as the wrong target")
	}
}

func TestClientSimpleRequestMatchesTransaction(t *testing.T) {
	c, srv := dialFake(t, 3, 2)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := wire.Decode(srv.conn)
		if err != nil {
			t.Errorf("server: reading request: %v", err)
			return
		}
		reply, _ := wire.NewMessage(req.Transaction, wire.MessageTypeMenuAvailable,
			wire.NewNumberField(4, uint32(req.Type)),
			wire.NewNumberField(4, 1),
		)
		wire.Encode(srv.conn, reply)
	}()

	expected := wire.MessageTypeMenuAvailable
	reply, err := c.simpleRequest(wire.MessageTypeSearchMenuReq, &expected, wire.NewNumberField(4, 0))
	if err != nil {
		t.Fatalf("simpleRequest: %v", err)
	}
	count, err := wire.AsNumber(reply.Arguments[1])
	if err != nil || count != 1 {
		t.Errorf("count = %v, want 1", reply.Arguments[1])
	}
	<-done
}

func TestClientCloseSendsTeardown(t *testing.T) {
	c, srv := dialFake(t, 3, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, err := wire.Decode(srv.conn)
		if err != nil {
			t.Errorf("server: reading teardown: %v", err)
			return
		}
		if msg.Type != wire.MessageTypeTeardownReq {
			t.Errorf("expected TEARDOWN_REQ, got 0x%04x", msg.Type)
		}
		if msg.Transaction != wire.TeardownTransaction {
			t.Errorf("teardown transaction = %d, want %d", msg.Transaction, wire.TeardownTransaction)
		}
	}()

	c.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for teardown request")
	}
}
