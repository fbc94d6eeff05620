package wa

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/matheus3301/wpphook/internal/manager"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// Dialer establishes whatsmeow-backed sessions. Device key material
// lives in the whatsmeow session database; the credential blob handed
// to Dial is a pointer identifying which device to resume.
type Dialer struct {
	dbPath string
	logger *zap.Logger

	mu        sync.Mutex
	container *sqlstore.Container
}

// NewDialer creates a dialer backed by the session database at dbPath.
func NewDialer(dbPath string, logger *zap.Logger) *Dialer {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wpphook", [3]uint32{0, 1, 0})
	return &Dialer{dbPath: dbPath, logger: logger}
}

// resumeBlob is the persisted credential snapshot: the JID of the
// whatsmeow device whose keys live in the session database.
type resumeBlob struct {
	JID string `json:"jid"`
}

func (d *Dialer) store(ctx context.Context) (*sqlstore.Container, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.container != nil {
		return d.container, nil
	}
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", d.dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	d.container = container
	return container, nil
}

// device resolves the credential blob to a stored whatsmeow device.
// An empty or unresolvable blob falls through to a fresh device, which
// puts the session on the QR pairing path.
func (d *Dialer) device(ctx context.Context, container *sqlstore.Container, creds []byte) (*wastore.Device, error) {
	if len(creds) > 0 {
		var blob resumeBlob
		if err := json.Unmarshal(creds, &blob); err != nil || blob.JID == "" {
			d.logger.Warn("malformed credential blob, starting fresh pairing")
		} else if jid, err := types.ParseJID(blob.JID); err != nil {
			d.logger.Warn("credential blob holds an invalid JID, starting fresh pairing", zap.Error(err))
		} else {
			dev, err := container.GetDevice(ctx, jid)
			if err != nil {
				return nil, fmt.Errorf("get device store: %w", err)
			}
			if dev != nil {
				return dev, nil
			}
			d.logger.Warn("credential blob points at an unknown device, starting fresh pairing",
				zap.String("jid", blob.JID))
		}
	}

	dev, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}
	return dev, nil
}

// Dial opens a WhatsApp session. When the device has no stored
// identity the session starts the QR pairing flow and streams codes
// on its event channel.
func (d *Dialer) Dial(ctx context.Context, creds []byte) (manager.Session, error) {
	container, err := d.store(ctx)
	if err != nil {
		return nil, err
	}

	dev, err := d.device(ctx, container, creds)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(dev, nil)
	// The connection manager owns reconnection policy.
	client.EnableAutoReconnect = false

	s := newSession(client, d.logger)

	if client.Store.ID == nil {
		// Must be requested before Connect.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("get QR channel: %w", err)
		}
		go s.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return s, nil
}
