// Package manager owns the lifecycle of the single logical WhatsApp
// session: establishment, retry after failures, credential
// persistence, and fan-out of protocol events to the archive, push
// subscribers, and the outbound webhook.
package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wpphook/internal/archive"
	"github.com/matheus3301/wpphook/internal/notify"
	"github.com/matheus3301/wpphook/internal/qr"
	"github.com/matheus3301/wpphook/internal/status"
	"go.uber.org/zap"
)

// SessionID keys the persisted credentials. The daemon manages exactly
// one named session.
const SessionID = "default"

// Backoff delays for the two distinct failure origins: a mid-session
// drop reconnects quickly, a failed establishment waits longer.
const (
	defaultReconnectDelay = 3 * time.Second
	defaultDialRetryDelay = 5 * time.Second
)

const userSuffix = "@s.whatsapp.net"

var (
	// ErrNotConnected is returned by caller-initiated operations that
	// require a live session.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidNumber is returned when a number lookup finds no match.
	ErrInvalidNumber = errors.New("invalid number")
	// ErrUnknownChat is returned when no history exists for a chat.
	ErrUnknownChat = errors.New("unknown chat")
)

// Manager drives the connection state machine and is the only
// component that mutates session state. Protocol events are processed
// strictly in arrival order by a single consumer goroutine; external
// requests (send, disconnect, status) synchronize through the mutex.
type Manager struct {
	dialer   Dialer
	creds    CredentialStore
	archive  *archive.Archive
	notifier *notify.Notifier
	machine  *status.Machine
	logger   *zap.Logger

	// ReconnectDelay and DialRetryDelay default to the production
	// backoff values; tests shorten them.
	ReconnectDelay time.Duration
	DialRetryDelay time.Duration

	mu         sync.Mutex
	sess       Session
	qrArtifact string
	retryTimer *time.Timer
	closed     bool
	wg         sync.WaitGroup
}

// New creates a manager. Call Start to begin the first establishment
// attempt.
func New(d Dialer, creds CredentialStore, a *archive.Archive, n *notify.Notifier, m *status.Machine, logger *zap.Logger) *Manager {
	return &Manager{
		dialer:         d,
		creds:          creds,
		archive:        a,
		notifier:       n,
		machine:        m,
		logger:         logger,
		ReconnectDelay: defaultReconnectDelay,
		DialRetryDelay: defaultDialRetryDelay,
	}
}

// Start kicks off session establishment in the background.
func (m *Manager) Start() {
	go m.connect()
}

// Stop tears down the manager: cancels any pending retry and closes
// the active session. Safe to call once.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	sess := m.sess
	m.sess = nil
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	m.wg.Wait()
}

// Status returns the current connection state and, while awaiting a
// scan, the encoded QR artifact.
func (m *Manager) Status() (status.State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Current(), m.qrArtifact
}

// connect attempts session establishment using stored credentials if
// present. Runs in its own goroutine; a setup failure schedules a
// retry, it is never surfaced to a caller.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed || m.sess != nil {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.mu.Unlock()

	blob, found, err := m.creds.LoadCredentials(SessionID)
	if err != nil {
		// Persistence failure is non-fatal: fall through to a fresh
		// pairing rather than refusing to start.
		m.logger.Warn("load credentials failed", zap.Error(err))
		blob = nil
	} else if found {
		m.logger.Info("resuming session from stored credentials")
	}

	sess, err := m.dialer.Dial(context.Background(), blob)
	if err != nil {
		m.logger.Error("session setup failed", zap.Error(err))
		m.scheduleRetry(m.DialRetryDelay)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sess.Close()
		return
	}
	m.sess = sess
	m.mu.Unlock()

	m.wg.Add(1)
	go m.consume(sess)
}

// consume processes the session's event stream until it closes. One
// consumer per session; events are handled strictly in order, and a
// credential save completes before the next event is taken.
func (m *Manager) consume(sess Session) {
	defer m.wg.Done()
	for ev := range sess.Events() {
		m.handle(sess, ev)
	}
}

func (m *Manager) handle(sess Session, ev Event) {
	switch e := ev.(type) {
	case QRCode:
		m.handleQR(e)
	case Opened:
		m.handleOpened()
	case Closed:
		m.handleClosed(sess, e)
	case CredentialsChanged:
		m.persistCredentials(sess)
	case MessageReceived:
		m.handleMessage(e.Message)
	case ReceiptUpdate:
		m.handleReceipt(e)
	}
}

func (m *Manager) handleQR(e QRCode) {
	artifact, err := qr.DataURI(e.Code)
	if err != nil {
		m.logger.Error("encode QR artifact", zap.Error(err))
		return
	}

	m.mu.Lock()
	if err := m.machine.Transition(status.AwaitingScan); err != nil {
		m.mu.Unlock()
		m.logger.Warn("unexpected QR code", zap.Error(err))
		return
	}
	m.qrArtifact = artifact
	m.mu.Unlock()

	m.logger.Info("QR code ready, awaiting scan")
	m.notifier.Broadcast("status", notify.StatusPayload{Status: string(status.AwaitingScan), QR: artifact})
	m.notifier.Broadcast("qr", notify.QRPayload{QR: artifact})
}

func (m *Manager) handleOpened() {
	m.mu.Lock()
	if err := m.machine.Transition(status.Connected); err != nil {
		m.mu.Unlock()
		m.logger.Warn("unexpected open event", zap.Error(err))
		return
	}
	m.qrArtifact = ""
	m.mu.Unlock()

	m.logger.Info("WhatsApp connected")
	m.notifier.Broadcast("status", notify.StatusPayload{Status: string(status.Connected)})
}

func (m *Manager) handleClosed(sess Session, e Closed) {
	m.mu.Lock()
	if m.sess != sess {
		// Stale event from a session already replaced.
		m.mu.Unlock()
		return
	}
	m.sess = nil
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.qrArtifact = ""
	m.mu.Unlock()

	sess.Close()

	m.logger.Warn("WhatsApp disconnected", zap.String("reason", e.Reason), zap.Bool("logged_out", e.LoggedOut))
	m.notifier.Broadcast("status", notify.StatusPayload{Status: string(status.Disconnected)})

	if e.LoggedOut {
		// Explicit logout: drop stored credentials, do not reconnect.
		if err := m.creds.DeleteCredentials(SessionID); err != nil {
			m.logger.Warn("delete credentials failed", zap.Error(err))
		}
		return
	}
	m.scheduleRetry(m.ReconnectDelay)
}

// persistCredentials saves a fresh snapshot synchronously. The consume
// loop does not advance until the write finishes, so the persisted
// copy is never older than what the session has negotiated. Failure is
// logged, not fatal: the session continues without a durable resume
// guarantee until the next successful write.
func (m *Manager) persistCredentials(sess Session) {
	blob, err := sess.Credentials(context.Background())
	if err != nil {
		m.logger.Warn("snapshot credentials failed", zap.Error(err))
		return
	}
	if err := m.creds.SaveCredentials(SessionID, blob); err != nil {
		m.logger.Warn("save credentials failed", zap.Error(err))
		return
	}
	m.logger.Info("credentials persisted")
}

func (m *Manager) handleMessage(rec archive.Message) {
	m.archive.Append(rec)
	m.notifier.Broadcast("new-message", rec)

	// Echoes of our own sends are archived and broadcast, but only
	// genuinely inbound messages trigger the webhook.
	if rec.FromMe {
		return
	}
	m.notifier.Deliver(context.Background(), notify.EventMessageReceived, map[string]any{
		"message_id":      rec.ID,
		"phone_number":    displayNumber(rec.ChatJID),
		"message_content": rec.Body,
		"timestamp":       rec.Timestamp,
	})
}

func (m *Manager) handleReceipt(e ReceiptUpdate) {
	var eventType string
	switch e.Kind {
	case ReceiptDelivered:
		eventType = notify.EventMessageDelivered
	case ReceiptRead:
		eventType = notify.EventMessageRead
	default:
		return
	}
	// Report when the peer delivered/read, not when we processed the
	// receipt.
	ts := e.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	for _, id := range e.MessageIDs {
		m.notifier.Deliver(context.Background(), eventType, map[string]any{
			"message_id": id,
			"timestamp":  ts,
		})
	}
}

// scheduleRetry arms the reconnect timer unless one is already
// pending. The stream may report the same physical drop more than
// once; at most one attempt may be in flight.
func (m *Manager) scheduleRetry(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.retryTimer != nil {
		return
	}
	m.logger.Info("scheduling reconnect", zap.Duration("delay", d))
	m.retryTimer = time.AfterFunc(d, m.connect)
}

// Send resolves number, sends text, archives the outbound record, and
// fires the message_sent webhook. Only valid while connected.
func (m *Manager) Send(ctx context.Context, number, text string) (string, error) {
	sess, err := m.activeSession()
	if err != nil {
		return "", err
	}

	jid, exists, err := sess.ResolveNumber(ctx, number)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrInvalidNumber
	}

	id, err := sess.SendText(ctx, jid, text)
	if err != nil {
		return "", err
	}

	rec := archive.Message{
		ID:        id,
		ChatJID:   jid,
		Body:      text,
		FromMe:    true,
		Timestamp: time.Now().UnixMilli(),
	}
	m.archive.Append(rec)
	m.notifier.Broadcast("new-message", rec)
	m.notifier.Deliver(ctx, notify.EventMessageSent, map[string]any{
		"message_id":      id,
		"phone_number":    displayNumber(jid),
		"message_content": text,
		"timestamp":       rec.Timestamp,
	})

	m.logger.Info("message sent", zap.String("message_id", id), zap.String("to", displayNumber(jid)))
	return id, nil
}

// CheckNumber reports whether a number exists on the network.
func (m *Manager) CheckNumber(ctx context.Context, number string) (bool, error) {
	sess, err := m.activeSession()
	if err != nil {
		return false, err
	}
	_, exists, err := sess.ResolveNumber(ctx, number)
	return exists, err
}

// Recent returns up to limit archived messages for a number, oldest
// first. Requires a live session and known history for the chat.
func (m *Manager) Recent(number string, limit int) ([]archive.Message, error) {
	if _, err := m.activeSession(); err != nil {
		return nil, err
	}
	key := chatKey(number)
	if !m.archive.Known(key) {
		return nil, ErrUnknownChat
	}
	return m.archive.Recent(key, limit), nil
}

// Conversations returns at most limit conversation summaries.
// Requires a live session.
func (m *Manager) Conversations(limit int) ([]archive.Conversation, error) {
	if _, err := m.activeSession(); err != nil {
		return nil, err
	}
	return m.archive.Conversations(limit), nil
}

// MarkRead sends read receipts for the archived inbound messages of a
// chat.
func (m *Manager) MarkRead(ctx context.Context, number string) error {
	sess, err := m.activeSession()
	if err != nil {
		return err
	}
	key := chatKey(number)
	if !m.archive.Known(key) {
		return ErrUnknownChat
	}

	var ids []string
	for _, rec := range m.archive.Recent(key, archive.Capacity) {
		if !rec.FromMe {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return sess.MarkRead(ctx, key, ids)
}

// Disconnect logs the session out, removes stored credentials, and
// immediately re-attempts establishment so the service progresses
// toward a fresh QR challenge instead of idling. Only valid while
// connected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.machine.Current() != status.Connected || m.sess == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	sess := m.sess
	m.sess = nil
	m.mu.Unlock()

	if err := sess.Logout(ctx); err != nil {
		m.logger.Warn("logout failed", zap.Error(err))
	}
	sess.Close()

	if err := m.creds.DeleteCredentials(SessionID); err != nil {
		m.logger.Warn("delete credentials failed", zap.Error(err))
	}

	m.mu.Lock()
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.qrArtifact = ""
	m.mu.Unlock()

	m.notifier.Broadcast("status", notify.StatusPayload{Status: string(status.Disconnected)})
	m.logger.Info("logged out, re-establishing session")

	go m.connect()
	return nil
}

// activeSession returns the live session or ErrNotConnected.
func (m *Manager) activeSession() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.machine.Current() != status.Connected || m.sess == nil {
		return nil, ErrNotConnected
	}
	return m.sess, nil
}

// chatKey maps a caller-supplied number to the archive key. Callers
// may pass a bare number or a full JID.
func chatKey(number string) string {
	if strings.Contains(number, "@") {
		return number
	}
	return number + userSuffix
}

// displayNumber strips the network suffix for outward-facing payloads.
func displayNumber(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
