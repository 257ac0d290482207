package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/earnhub/backend/internal/database"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

const inviteTTL = 7 * 24 * time.Hour

var ErrInvalidInvite = errors.New("invalid or expired invite code")

// Invite is a shareable referral link with its QR rendering
type Invite struct {
	Code      string    `json:"code"`
	Link      string    `json:"link"`
	QRImage   string    `json:"qrImage"` // base64 PNG
	ExpiresAt time.Time `json:"expiresAt"`
}

type QRService struct {
	store    database.Store
	redis    redis.Cmdable
	settings SettingsSource
	nonce    func() string
	now      func() time.Time
}

func NewQRService(store database.Store, rdb redis.Cmdable, settings SettingsSource) *QRService {
	return &QRService{store: store, redis: rdb, settings: settings, nonce: generateNonce, now: time.Now}
}

// GenerateInvite issues an invite code for accountID and renders the registration link as a QR code.
func (s *QRService) GenerateInvite(ctx context.Context, accountID string) (*Invite, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"referrerId": accountID,
		"issuedAt":   s.now().Unix(),
	})
	if err != nil {
		return nil, err
	}

	code := s.nonce()
	if err := s.redis.Set(ctx, inviteKey(code), payload, inviteTTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: store invite: %v", database.ErrStoreUnavailable, err)
	}

	link, err := url.Parse(s.settings.Current().ReferralBaseURL)
	if err != nil {
		return nil, fmt.Errorf("referral base url: %w", err)
	}
	q := link.Query()
	q.Set("ref", accountID)
	q.Set("invite", code)
	link.RawQuery = q.Encode()

	qr, err := qrcode.New(link.String(), qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, err
	}

	return &Invite{
		Code:      code,
		Link:      link.String(),
		QRImage:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		ExpiresAt: s.now().Add(inviteTTL),
	}, nil
}

// ResolveInvite returns the referrer behind an invite code.
func (s *QRService) ResolveInvite(ctx context.Context, code string) (string, error) {
	data, err := s.redis.Get(ctx, inviteKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidInvite
	}
	if err != nil {
		return "", fmt.Errorf("%w: load invite: %v", database.ErrStoreUnavailable, err)
	}

	var payload struct {
		ReferrerID string `json:"referrerId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ReferrerID == "" {
		return "", ErrInvalidInvite
	}
	return payload.ReferrerID, nil
}

func inviteKey(code string) string {
	return fmt.Sprintf("invite:%s", code)
}

func generateNonce() string {
	b := make([]byte, 12)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
