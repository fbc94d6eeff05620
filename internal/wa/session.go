package wa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wpphook/internal/manager"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const eventBufferSize = 256

// Session adapts one whatsmeow client to the manager's session
// contract. All whatsmeow callbacks funnel into a single buffered
// channel so the consumer sees events in arrival order.
type Session struct {
	client    *whatsmeow.Client
	logger    *zap.Logger
	events    chan manager.Event
	handlerID uint32

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newSession(client *whatsmeow.Client, logger *zap.Logger) *Session {
	s := &Session{
		client: client,
		logger: logger,
		events: make(chan manager.Event, eventBufferSize),
	}
	s.handlerID = client.AddEventHandler(s.handleEvent)
	return s
}

// Events returns the session's event stream. The channel closes when
// the session is closed.
func (s *Session) Events() <-chan manager.Event {
	return s.events
}

// emit queues an event without ever blocking a whatsmeow callback. A
// full buffer drops the event rather than stalling the socket reader.
func (s *Session) emit(ev manager.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("session event buffer full, dropping event")
	}
}

func (s *Session) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		s.emit(manager.Opened{})
	case *events.PairSuccess:
		s.logger.Info("device paired", zap.String("jid", evt.ID.String()))
		s.emit(manager.CredentialsChanged{})
	case *events.Disconnected:
		s.emit(manager.Closed{Reason: "connection closed"})
	case *events.StreamError:
		s.emit(manager.Closed{Reason: fmt.Sprintf("stream error: %s", evt.Code)})
	case *events.LoggedOut:
		s.emit(manager.Closed{Reason: evt.Reason.String(), LoggedOut: true})
	case *events.Message:
		s.logger.Debug("message event",
			zap.String("id", evt.Info.ID),
			zap.String("type", detectMessageType(evt.Message)))
		s.emit(manager.MessageReceived{Message: parseMessage(evt)})
	case *events.Receipt:
		s.handleReceipt(evt)
	}
}

func (s *Session) handleReceipt(evt *events.Receipt) {
	var kind manager.ReceiptKind
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		kind = manager.ReceiptDelivered
	case types.ReceiptTypeRead:
		kind = manager.ReceiptRead
	default:
		// Played, sender and other receipt flavors carry no webhook
		// event.
		return
	}

	ids := make([]string, len(evt.MessageIDs))
	for i, id := range evt.MessageIDs {
		ids[i] = string(id)
	}
	s.emit(manager.ReceiptUpdate{
		ChatJID:    evt.Chat.ToNonAD().String(),
		MessageIDs: ids,
		Kind:       kind,
		Timestamp:  evt.Timestamp.UnixMilli(),
	})
}

// pumpQR forwards pairing codes from the QR channel. Codes refresh
// until the phone scans one or the flow times out.
func (s *Session) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			s.emit(manager.QRCode{Code: item.Code})
		case "success":
			// PairSuccess and Connected arrive through the event
			// handler.
		case "timeout":
			s.emit(manager.Closed{Reason: "pairing timed out"})
		default:
			if item.Error != nil {
				s.emit(manager.Closed{Reason: item.Error.Error()})
			}
		}
	}
}

// SendText sends a text message to the given JID. Returns the server
// message ID.
func (s *Session) SendText(ctx context.Context, jid, text string) (string, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := s.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// ResolveNumber checks whether a phone number is registered on
// WhatsApp and returns its canonical JID.
func (s *Session) ResolveNumber(ctx context.Context, number string) (string, bool, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{number})
	if err != nil {
		return "", false, fmt.Errorf("check number: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", false, nil
	}
	return resp[0].JID.ToNonAD().String(), true, nil
}

// MarkRead sends read receipts for the given message IDs in a chat.
func (s *Session) MarkRead(ctx context.Context, chatJID string, messageIDs []string) error {
	chat, err := types.ParseJID(chatJID)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	if err := s.client.MarkRead(ctx, ids, time.Now(), chat, chat); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Credentials returns the resume snapshot for the paired device.
func (s *Session) Credentials(_ context.Context) ([]byte, error) {
	id := s.client.Store.ID
	if id == nil {
		return nil, errors.New("device not paired")
	}
	return json.Marshal(resumeBlob{JID: id.String()})
}

// Logout invalidates the session on the server and wipes the device's
// stored keys.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

// Close tears the session down. Safe to call more than once and
// concurrently with inbound events.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.client.RemoveEventHandler(s.handlerID)
		s.client.Disconnect()

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}
