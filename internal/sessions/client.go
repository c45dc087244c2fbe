package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// ServiceNotificationsPeer is the official Telegram service account that
// delivers login codes.
const ServiceNotificationsPeer int64 = 777000

type Message struct {
	Text string
	Date time.Time
}

// AccountSession is one live, authorized-or-not connection over a
// credential file.
type AccountSession interface {
	Authorized(ctx context.Context) (bool, error)
	Phone(ctx context.Context) (string, error)
	RecentMessages(ctx context.Context, peerID int64, limit int) ([]Message, error)
}

// AccountClient dials the account protocol with a stored credential.
// WithSession scopes the connection to one call: it is opened for fn and
// released on every exit path, and is never shared between callers.
type AccountClient interface {
	WithSession(ctx context.Context, path string, fn func(ctx context.Context, s AccountSession) error) error
}

// MTProtoClient is the production AccountClient over gotd.
type MTProtoClient struct {
	APIID   int
	APIHash string
}

func (c *MTProtoClient) WithSession(ctx context.Context, path string, fn func(ctx context.Context, s AccountSession) error) error {
	client := telegram.NewClient(c.APIID, c.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: path},
	})
	return client.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, &mtprotoSession{client: client})
	})
}

type mtprotoSession struct {
	client *telegram.Client
}

func (s *mtprotoSession) Authorized(ctx context.Context) (bool, error) {
	status, err := s.client.Auth().Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

func (s *mtprotoSession) Phone(ctx context.Context) (string, error) {
	self, err := s.client.Self(ctx)
	if err != nil {
		return "", err
	}
	return self.Phone, nil
}

// RecentMessages returns up to limit messages from the peer, newest first.
func (s *mtprotoSession) RecentMessages(ctx context.Context, peerID int64, limit int) ([]Message, error) {
	api := s.client.API()
	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerUser{UserID: peerID},
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	modified, ok := res.AsModified()
	if !ok {
		return nil, fmt.Errorf("неожиданный ответ истории: %T", res)
	}

	var out []Message
	for _, m := range modified.GetMessages() {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, Message{
			Text: msg.Message,
			Date: time.Unix(int64(msg.Date), 0).UTC(),
		})
	}
	return out, nil
}
