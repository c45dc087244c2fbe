package sessions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nyawka/phonixshop/internal/logging"
)

// codeScanLimit bounds the window of service messages searched for a
// login code.
const codeScanLimit = 10

var errUnauthorized = errors.New("session is not authorized")

type CodeStatus int

const (
	CodeFound CodeStatus = iota
	CodeNotFound
	CodeUnauthorized
	CodeTransientError
)

type CodeResult struct {
	Status     CodeStatus
	Code       string
	ReceivedAt time.Time
	Detail     string
}

// Manager exposes liveness checks and code retrieval over stored
// credentials. Every call opens its own scoped connection.
type Manager struct {
	Client AccountClient
	Store  *Store
}

func NewManager(client AccountClient, store *Store) *Manager {
	return &Manager{Client: client, Store: store}
}

// VerifyAndExtractPhone connects with the credential and returns its
// formatted phone number. Any failure, from a malformed file to a dead
// connection, is reported as ok=false; this never returns an error.
func (m *Manager) VerifyAndExtractPhone(ctx context.Context, ref string) (string, bool) {
	var phone string
	err := m.Client.WithSession(ctx, m.Store.SessionPath(ref), func(ctx context.Context, s AccountSession) error {
		ok, err := s.Authorized(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errUnauthorized
		}
		p, err := s.Phone(ctx)
		if err != nil {
			return err
		}
		if p == "" {
			return errors.New("profile has no phone")
		}
		phone = formatPhone(p)
		return nil
	})
	if err != nil {
		logging.FromContext(ctx).Warn("session verification failed", "ref", ref, "error", err)
		return "", false
	}
	return phone, true
}

// FetchLatestCode scans the most recent service-notification messages for
// a login code, newest first.
func (m *Manager) FetchLatestCode(ctx context.Context, ref string) CodeResult {
	var result CodeResult
	err := m.Client.WithSession(ctx, m.Store.SessionPath(ref), func(ctx context.Context, s AccountSession) error {
		ok, err := s.Authorized(ctx)
		if err != nil {
			return err
		}
		if !ok {
			result = CodeResult{Status: CodeUnauthorized}
			return nil
		}

		messages, err := s.RecentMessages(ctx, ServiceNotificationsPeer, codeScanLimit)
		if err != nil {
			return err
		}

		if found, ok := scanForCode(messages); ok {
			result = CodeResult{Status: CodeFound, Code: found.Code, ReceivedAt: found.ReceivedAt}
		} else {
			result = CodeResult{Status: CodeNotFound}
		}
		return nil
	})
	if err != nil {
		logging.FromContext(ctx).Warn("code fetch failed", "ref", ref, "error", err)
		return CodeResult{Status: CodeTransientError, Detail: err.Error()}
	}
	return result
}

func formatPhone(p string) string {
	return "+" + strings.TrimPrefix(p, "+")
}
