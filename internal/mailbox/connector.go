package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/reachbox/reachbox/pkg/models"
)

// RawMessage is one raw RFC822 message as returned by the mail server
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Config configuration for the connector
type Config struct {
	DialTimeout    time.Duration
	AuthTimeout    time.Duration
	CommandTimeout time.Duration // Per-command deadline after login
	TLSConfig      *tls.Config   // Overrides the default TLS config, for tests
}

// Connector opens one IMAP session per Fetch call. A fresh call re-opens a
// fresh connection and re-issues the search; there is no cursor to resume.
type Connector struct {
	config Config
	logger *slog.Logger
}

// NewConnector creates a new IMAP connector
func NewConnector(cfg Config, logger *slog.Logger) *Connector {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = 3 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
	return &Connector{
		config: cfg,
		logger: logger.With("component", "mailbox_connector"),
	}
}

// Fetch connects to the account's IMAP server, selects the INBOX and
// streams every message received since the given time, in server search
// order, to fn. The underlying connection is released on every exit path.
// When fn returns an error the remaining batch is abandoned and that error
// is returned; connector-level failures come back as *Error.
func (c *Connector) Fetch(ctx context.Context, account *models.Account, since time.Time, limit int, fn func(RawMessage) error) error {
	logger := c.logger.With("email", account.Email)

	imapClient, err := c.connect(ctx, account)
	if err != nil {
		return err
	}
	// The watchdog tears the connection down when the run's context ends,
	// so a server that stalls after LOGIN cannot block the scheduler past
	// its per-run deadline. Stopped last so that Logout is covered too.
	stopWatch := watchTeardown(ctx, imapClient)
	defer stopWatch()
	// Logout releases the session on every path below, including partial
	// failures mid-fetch.
	defer func() {
		if err := imapClient.Logout(); err != nil {
			logger.Debug("imap logout failed", "error", err)
		}
	}()

	if _, err := imapClient.Select("INBOX", true); err != nil {
		if ctx.Err() != nil {
			return classifyTransport(account.Email, ctx.Err())
		}
		return &Error{Kind: KindMailboxUnavailable, Email: account.Email, Err: err}
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := imapClient.UidSearch(criteria)
	if err != nil {
		return transportErr(ctx, account.Email, err)
	}
	if len(uids) == 0 {
		logger.Debug("no messages in lookback window")
		return nil
	}

	// Cap oversized mailboxes to the newest part of the window
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	logger.Debug("fetching messages", "count", len(uids))

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	// Peek keeps the \Seen flags untouched on the server
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.UidFetch(seqSet, items, messages)
	}()

	var fnErr error
	for msg := range messages {
		if fnErr != nil || ctx.Err() != nil {
			// Keep draining so the fetch goroutine can finish
			continue
		}

		body := msg.GetBody(section)
		if body == nil {
			logger.Warn("message has no body section", "uid", msg.Uid)
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			logger.Warn("failed to read message body", "uid", msg.Uid, "error", err)
			continue
		}

		fnErr = fn(RawMessage{UID: msg.Uid, Body: raw})
	}

	fetchErr := <-done
	if fnErr != nil {
		// The callback aborted the batch; its error wins over whatever
		// the drained fetch came back with
		return fnErr
	}
	if fetchErr != nil {
		return transportErr(ctx, account.Email, fetchErr)
	}
	if err := ctx.Err(); err != nil {
		return classifyTransport(account.Email, err)
	}
	return nil
}

// Test verifies that the account credentials work: connect, login, select
// INBOX, logout. Used by the account setup flow before storing an account.
func (c *Connector) Test(ctx context.Context, account *models.Account) error {
	imapClient, err := c.connect(ctx, account)
	if err != nil {
		return err
	}
	stopWatch := watchTeardown(ctx, imapClient)
	defer stopWatch()
	defer imapClient.Logout()

	if _, err := imapClient.Select("INBOX", true); err != nil {
		if ctx.Err() != nil {
			return classifyTransport(account.Email, ctx.Err())
		}
		return &Error{Kind: KindMailboxUnavailable, Email: account.Email, Err: err}
	}
	return nil
}

// watchTeardown force-closes the connection when ctx ends, unblocking any
// in-flight command. The returned stop func must be called before the
// client goes out of scope.
func watchTeardown(ctx context.Context, imapClient *client.Client) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			imapClient.Terminate()
		case <-stop:
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// connect dials the server and authenticates
func (c *Connector) connect(ctx context.Context, account *models.Account) (*client.Client, error) {
	addr := account.Addr()

	tlsConfig := c.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: account.IMAPHost}
	}
	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, classifyTransport(account.Email, fmt.Errorf("failed to connect to %s: %w", addr, err))
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, classifyTransport(account.Email, fmt.Errorf("failed to create IMAP client: %w", err))
	}

	imapClient.Timeout = c.config.AuthTimeout
	if err := imapClient.Login(account.Email, NormalizeSecret(account.Secret)); err != nil {
		imapClient.Logout()
		return nil, classifyLogin(account.Email, err)
	}
	// Post-login round-trips keep a deadline so a stalled server surfaces
	// as a timeout instead of a hang
	imapClient.Timeout = c.config.CommandTimeout

	return imapClient, nil
}

// NormalizeSecret strips all whitespace from an account secret. App-specific
// passwords are often copy-pasted with spaces; mail servers reject them
// verbatim.
func NormalizeSecret(secret string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, secret)
}
