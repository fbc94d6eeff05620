package wa

import (
	"github.com/matheus3301/wpphook/internal/archive"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// mediaPlaceholder stands in for any body without extractable text.
// The fixed string is part of the archive and webhook contract.
const mediaPlaceholder = "[Media/Other]"

// parseMessage normalizes a live whatsmeow message event into an
// archive record. Non-text payloads keep a placeholder body so the
// conversation history stays continuous.
func parseMessage(evt *events.Message) archive.Message {
	body := extractTextBody(evt.Message)
	if body == "" {
		body = mediaPlaceholder
	}
	return archive.Message{
		ID:        evt.Info.ID,
		ChatJID:   NormalizeJID(evt.Info.Chat.String()),
		Body:      body,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp.UnixMilli(),
	}
}

// NormalizeJID strips the device part so every message of one peer
// lands under one chat key.
func NormalizeJID(jid string) string {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return jid
	}
	return parsed.ToNonAD().String()
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
