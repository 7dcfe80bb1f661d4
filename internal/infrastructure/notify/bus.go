package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// Publisher is the subset of a JetStream context the bus notifier needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// BusNotifier publishes identity lifecycle events to NATS JetStream.
// Events never carry the link: it embeds a live token.
type BusNotifier struct {
	conn   *nats.Conn
	js     Publisher
	prefix string
	now    func() time.Time
}

type lifecycleEvent struct {
	Kind       domain.NotificationKind `json:"kind"`
	IdentityID string                  `json:"identity_id"`
	Email      string                  `json:"email"`
	Outcome    string                  `json:"outcome,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// DialBus connects to url and returns a BusNotifier publishing under prefix.
func DialBus(url, prefix string, opts ...nats.Option) (*BusNotifier, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	b := NewBusNotifier(js, prefix)
	b.conn = nc
	return b, nil
}

func NewBusNotifier(js Publisher, prefix string) *BusNotifier {
	if prefix == "" {
		prefix = "access"
	}
	return &BusNotifier{js: js, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

// Subject returns the subject msg is published on: the provisioning outcome
// when there is one, otherwise the notification kind.
func (b *BusNotifier) Subject(msg domain.Notification) string {
	event := string(msg.Kind)
	if msg.Outcome != "" {
		event = msg.Outcome
	}
	return b.prefix + ".identity." + event
}

func (b *BusNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	if b == nil || b.js == nil {
		return errors.New("nil bus")
	}
	data, err := json.Marshal(lifecycleEvent{
		Kind:       msg.Kind,
		IdentityID: msg.IdentityID,
		Email:      msg.Email,
		Outcome:    msg.Outcome,
		OccurredAt: b.now(),
	})
	if err != nil {
		return err
	}
	_, err = b.js.Publish(b.Subject(msg), data, nats.Context(ctx))
	return err
}

// Close drains the underlying connection when the notifier owns one.
func (b *BusNotifier) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Connected reports whether the owned connection is up. A notifier built
// around an external publisher reports false.
func (b *BusNotifier) Connected() bool {
	return b != nil && b.conn != nil && b.conn.IsConnected()
}
