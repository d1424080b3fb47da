package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/domain"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// Fetcher retrieves unseen messages from the support mailbox over IMAPS.
type Fetcher struct {
	cfg       config.MailConfig
	logger    *zap.Logger
	now       func() time.Time
	newClient func(config.MailConfig) (imapClient, error)
}

// FetcherOption customizes fetcher behavior.
type FetcherOption func(*Fetcher)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func withClientFactory(factory func(config.MailConfig) (imapClient, error)) FetcherOption {
	return func(f *Fetcher) {
		f.newClient = factory
	}
}

// NewFetcher builds a fetcher for the configured mailbox.
func NewFetcher(cfg config.MailConfig, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		cfg:    cfg,
		logger: logger.Named("mail.fetcher"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	f.newClient = f.dialTLS
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchUnseen returns every unseen message in the mailbox, marking each one
// \Seen after it has been decoded. Failures are logged and the messages
// collected so far are returned; the call never fails.
func (f *Fetcher) FetchUnseen(ctx context.Context) []domain.Envelope {
	if !f.cfg.IMAPConfigured() {
		f.logger.Warn("imap not configured, skipping fetch")
		return nil
	}

	envelopes, err := f.fetch(ctx)
	if err != nil {
		f.logger.Error("imap fetch failed",
			zap.Error(err),
			zap.Int("collected", len(envelopes)),
		)
	}
	return envelopes
}

func (f *Fetcher) fetch(ctx context.Context) ([]domain.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := f.newClient(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}

	// IMAP commands take no context; closing the connection is what unblocks
	// a pending Wait when the pass is cancelled.
	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(func() { f.safeClose(client) }) }
	defer closeClient()
	stop := context.AfterFunc(ctx, closeClient)
	defer stop()

	envelopes, err := f.session(ctx, client)
	if err != nil && ctx.Err() != nil {
		return envelopes, fmt.Errorf("imap session interrupted: %w", ctx.Err())
	}
	return envelopes, err
}

func (f *Fetcher) session(ctx context.Context, client imapClient) ([]domain.Envelope, error) {

	if err := client.Login(f.cfg.User, f.cfg.Password).Wait(); err != nil {
		return nil, fmt.Errorf("imap auth: %w", err)
	}

	mailbox := f.cfg.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		f.logout(client)
		return nil, nil
	}

	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{Peek: true}},
	}
	buffers, err := client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	var envelopes []domain.Envelope
	for _, buf := range buffers {
		if err := ctx.Err(); err != nil {
			return envelopes, err
		}
		raw := rawBody(buf)
		if raw == nil {
			f.logger.Warn("imap message without body", zap.Uint32("uid", uint32(buf.UID)))
			continue
		}

		env, parseErr := ParseMessage(raw, buf.InternalDate.UTC())
		env.UID = uint32(buf.UID)

		if err := f.markSeen(client, buf.UID); err != nil {
			return envelopes, fmt.Errorf("imap store seen uid %d: %w", buf.UID, err)
		}
		if parseErr != nil {
			f.logger.Error("unparseable message skipped",
				zap.Uint32("uid", env.UID),
				zap.Error(parseErr),
			)
			continue
		}
		if env.ReceivedAt.IsZero() {
			env.ReceivedAt = f.now()
		}
		envelopes = append(envelopes, env)
	}

	f.logout(client)
	return envelopes, nil
}

func (f *Fetcher) markSeen(client imapClient, uid imap.UID) error {
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagSeen}}
	return client.Store(imap.UIDSetNum(uid), store, nil).Close()
}

func rawBody(buf *imapclient.FetchMessageBuffer) []byte {
	for _, section := range buf.BodySection {
		if len(section.Bytes) > 0 {
			return section.Bytes
		}
	}
	return nil
}

func (f *Fetcher) logout(client imapClient) {
	if err := client.Logout().Wait(); err != nil {
		f.logger.Debug("imap logout failed", zap.Error(err))
	}
}

func (f *Fetcher) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		f.logger.Debug("imap close failed", zap.Error(err))
	}
}

// dialTLS connects over implicit TLS. The connection carries a deadline for
// the whole session so a server that stops answering fails the pass.
func (f *Fetcher) dialTLS(cfg config.MailConfig) (imapClient, error) {
	addr := net.JoinHostPort(cfg.IMAPHost, fmt.Sprint(cfg.IMAPPort))
	dialer := &net.Dialer{Timeout: cfg.DialTimeout()}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.IMAPHost})
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(cfg.SessionTimeout())); err != nil {
		conn.Close()
		return nil, err
	}
	return &imapClientWrapper{Client: imapclient.New(conn, nil)}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}
