// Package mailclient implements a line-oriented duplex connection to an
// external mail relay speaking a minimal textual subset of SMTP: HELO,
// AUTH PLAIN, MAIL FROM, RCPT TO, DATA. The corpus contains no library or
// example for this exact protocol, so the client is built directly
// against net/bufio the way a single-reader single-writer TCP line
// protocol is conventionally written in Go; see DESIGN.md for why no
// third-party SMTP client was used instead.
package mailclient

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// State is the connection's position in its handshake/send lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Greeting
	Authed
	Sending
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Greeting:
		return "greeting"
	case Authed:
		return "authed"
	case Sending:
		return "sending"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client owns a single TCP connection to the mail relay. Not safe for
// concurrent use — one Client per dispatcher worker, per spec.md §5's
// "Mail connection: not shared; one per worker task, single-ownership."
type Client struct {
	serverAddr string
	serverName string
	username   string
	password   string
	opTimeout  time.Duration

	log *zap.Logger

	conn  net.Conn
	r     *bufio.Reader
	state State
}

// New returns a Client in the Disconnected state. Connect must be called
// before SendMail.
func New(serverAddr, serverName, username, password string, opTimeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		serverAddr: serverAddr,
		serverName: serverName,
		username:   username,
		password:   password,
		opTimeout:  opTimeout,
		log:        log,
		state:      Disconnected,
	}
}

// Connect dials the relay, sends HELO and consumes 2 response lines, then
// sends AUTH PLAIN and consumes 1 response line.
func (c *Client) Connect(ctx context.Context) error {
	c.state = Connecting

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		c.state = Disconnected
		return fmt.Errorf("dial mail relay: %w", err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)

	c.state = Greeting
	if err := c.writeLine(fmt.Sprintf("HELO %s", c.serverName)); err != nil {
		return c.fail(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.readLine(); err != nil {
			return c.fail(fmt.Errorf("read HELO response: %w", err))
		}
	}

	auth := base64.StdEncoding.EncodeToString([]byte("\x00" + c.username + "\x00" + c.password))
	if err := c.writeLine(fmt.Sprintf("AUTH PLAIN %s", auth)); err != nil {
		return c.fail(err)
	}
	if _, err := c.readLine(); err != nil {
		return c.fail(fmt.Errorf("read AUTH response: %w", err))
	}

	c.state = Authed
	return nil
}

func (c *Client) fail(err error) error {
	c.closeConn()
	c.state = Disconnected
	return err
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.r = nil
	}
}

func (c *Client) writeLine(line string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}

func (c *Client) readLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opTimeout)); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

// SendMail attempts delivery up to retries times. On any transport error
// it reconnects (full greet+auth) before retrying. Response codes are
// read but never parsed — a deliberate narrowing documented in spec.md
// §4.4: the relay is trusted and local, so only transport-level failure
// (closed socket, deadline) is treated as an error.
//
// Returns (non-nil timestamp, nil) on success, (nil, nil) once retries
// are exhausted — exhaustion is a delivery failure, not a Go error.
func (c *Client) SendMail(ctx context.Context, from, to, subject, body string, retries int) (*time.Time, error) {
	for attempt := 0; attempt < retries; attempt++ {
		sentAt, err := c.sendOnce(from, to, subject, body)
		if err == nil {
			return &sentAt, nil
		}

		c.log.Warn("mail send attempt failed, reconnecting",
			zap.Int("attempt", attempt+1),
			zap.Int("retries", retries),
			zap.Error(err))

		c.state = Reconnecting
		c.closeConn()
		if cerr := c.Connect(ctx); cerr != nil {
			c.log.Warn("mail relay reconnect failed", zap.Error(cerr))
			continue
		}
	}
	return nil, nil
}

func (c *Client) sendOnce(from, to, subject, body string) (time.Time, error) {
	if c.state != Authed {
		return time.Time{}, fmt.Errorf("send attempted in state %s, want authed", c.state)
	}
	c.state = Sending
	defer func() {
		if c.state == Sending {
			c.state = Authed
		}
	}()

	if err := c.writeLine(fmt.Sprintf("MAIL FROM:<%s>", from)); err != nil {
		return time.Time{}, err
	}
	if _, err := c.readLine(); err != nil {
		return time.Time{}, err
	}

	if err := c.writeLine(fmt.Sprintf("RCPT TO:<%s>", to)); err != nil {
		return time.Time{}, err
	}
	if _, err := c.readLine(); err != nil {
		return time.Time{}, err
	}

	if err := c.writeLine("DATA"); err != nil {
		return time.Time{}, err
	}
	if _, err := c.readLine(); err != nil {
		return time.Time{}, err
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n.", from, to, subject, body)
	if err := c.writeLine(msg); err != nil {
		return time.Time{}, err
	}
	if _, err := c.readLine(); err != nil {
		return time.Time{}, err
	}

	return time.Now().UTC(), nil
}

// Close releases the underlying connection. Safe to call on an already
// disconnected client.
func (c *Client) Close() {
	c.closeConn()
	c.state = Disconnected
}
