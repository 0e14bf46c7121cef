package mailclient_test

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notify-svc/scheduler/internal/mailclient"
)

// fakeRelay serves every connection it accepts in its own goroutine: it
// sends a greeting line on connect and then answers every line it reads
// with a single "250 ok" response, unless told to close the connection
// immediately instead (simulating the relay going down).
type fakeRelay struct {
	ln     net.Listener
	refuse chan bool

	mu    sync.Mutex
	conns []net.Conn
}

func startFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake relay: %v", err)
	}
	r := &fakeRelay{ln: ln, refuse: make(chan bool, 16)}
	go r.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return r
}

func (r *fakeRelay) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns = append(r.conns, conn)
		r.mu.Unlock()
		go r.serve(conn)
	}
}

// closeActive closes every connection accepted so far, simulating the
// relay dropping its end mid-session.
func (r *fakeRelay) closeActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		_ = c.Close()
	}
	r.conns = nil
}

func (r *fakeRelay) serve(conn net.Conn) {
	defer conn.Close()
	select {
	case refuse := <-r.refuse:
		if refuse {
			return
		}
	default:
	}

	// Greeting banner: together with the reply to HELO, this is the second
	// line Client.Connect reads after sending HELO.
	if _, err := conn.Write([]byte("220 fake relay ready\r\n")); err != nil {
		return
	}

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		_ = line
		if _, err := conn.Write([]byte("250 ok\r\n")); err != nil {
			return
		}
	}
}

func TestClient_ConnectAndSendMail_Success(t *testing.T) {
	relay := startFakeRelay(t)

	c := mailclient.New(relay.ln.Addr().String(), "notify-scheduler", "notifier", "secret", 300*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	defer c.Close()

	sentAt, err := c.SendMail(ctx, "notifier@example.com", "alice1@example.com", "Hi", "Body", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sentAt == nil {
		t.Fatal("expected a non-nil sent timestamp")
	}
	if sentAt.After(time.Now().UTC()) {
		t.Fatal("expected sent_at to not be in the future")
	}
}

func TestClient_Connect_RelayDown(t *testing.T) {
	// Dial an address nothing listens on.
	c := mailclient.New("127.0.0.1:1", "notify-scheduler", "notifier", "secret", 50*time.Millisecond, zap.NewNop())
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected an error connecting to a closed port")
	}
}

func TestClient_SendMail_ExhaustsRetries_WhenRelayRefusesReconnects(t *testing.T) {
	relay := startFakeRelay(t)

	c := mailclient.New(relay.ln.Addr().String(), "notify-scheduler", "notifier", "secret", 200*time.Millisecond, zap.NewNop())
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	defer c.Close()

	// Force every subsequent accepted connection (the reconnect attempts
	// SendMail makes after a failure) to be refused immediately.
	for i := 0; i < 10; i++ {
		relay.refuse <- true
	}

	// Close the already-authed connection out from under the client so
	// the next write fails and triggers the retry-then-reconnect path.
	relay.closeActive()

	sentAt, err := c.SendMail(ctx, "notifier@example.com", "alice1@example.com", "Hi", "Body", 3)
	if err != nil {
		t.Fatalf("expected exhausted retries to be reported as (nil, nil), not an error: %v", err)
	}
	if sentAt != nil {
		t.Fatal("expected a nil timestamp once retries are exhausted")
	}
}
