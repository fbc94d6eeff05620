package manager

import (
	"context"

	"github.com/matheus3301/wpphook/internal/archive"
)

// Event is one tagged event on a session's protocol stream. The
// manager consumes these strictly in arrival order.
type Event interface {
	event()
}

// QRCode carries a fresh raw pairing code. Codes refresh while the
// session waits for a scan, so several may arrive per establishment.
type QRCode struct {
	Code string
}

// Opened signals that the session is connected and authenticated.
type Opened struct{}

// Closed signals that the session ended. LoggedOut distinguishes an
// explicit user logout (no automatic reconnect) from a transient drop.
type Closed struct {
	Reason    string
	LoggedOut bool
}

// CredentialsChanged signals that the session negotiated new
// credentials. The manager persists a fresh snapshot before it
// processes the next stream event.
type CredentialsChanged struct{}

// MessageReceived carries one normalized message, inbound or an echo
// of our own sends.
type MessageReceived struct {
	Message archive.Message
}

// ReceiptKind classifies a delivery receipt.
type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptRead      ReceiptKind = "read"
)

// ReceiptUpdate carries delivery status changes for previously sent
// messages. Timestamp is when the peer reported the receipt, in Unix
// milliseconds.
type ReceiptUpdate struct {
	ChatJID    string
	MessageIDs []string
	Kind       ReceiptKind
	Timestamp  int64
}

func (QRCode) event()             {}
func (Opened) event()             {}
func (Closed) event()             {}
func (CredentialsChanged) event() {}
func (MessageReceived) event()    {}
func (ReceiptUpdate) event()      {}

// Session is an established protocol session. Implemented by the
// whatsmeow adapter; faked in tests.
type Session interface {
	// Events returns the protocol event stream. The channel closes
	// when the session is closed.
	Events() <-chan Event
	// SendText sends a text message and returns the server message ID.
	SendText(ctx context.Context, jid, text string) (string, error)
	// ResolveNumber checks whether a phone number exists on the
	// network and returns its canonical JID.
	ResolveNumber(ctx context.Context, number string) (jid string, exists bool, err error)
	// MarkRead sends read receipts for the given message IDs.
	MarkRead(ctx context.Context, chatJID string, messageIDs []string) error
	// Credentials returns a serializable snapshot of the session's
	// resume credentials.
	Credentials(ctx context.Context) ([]byte, error)
	// Logout invalidates the session on the server and removes local
	// device state.
	Logout(ctx context.Context) error
	// Close tears the session down. Idempotent.
	Close()
}

// Dialer establishes sessions. creds is the blob from a previous
// CredentialsChanged persistence, or nil on first run.
type Dialer interface {
	Dial(ctx context.Context, creds []byte) (Session, error)
}

// CredentialStore persists resume credentials. Satisfied by *store.DB.
type CredentialStore interface {
	SaveCredentials(sessionID string, blob []byte) error
	LoadCredentials(sessionID string) (blob []byte, found bool, err error)
	DeleteCredentials(sessionID string) error
}
