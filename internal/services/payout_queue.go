package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

// PayoutQueueKey is the redis list the settlement worker consumes
const PayoutQueueKey = "payout_queue"

// PayoutPublisher hands approved withdrawals to the settlement side
type PayoutPublisher interface {
	PublishPayout(ctx context.Context, w *models.Withdrawal) error
	PublishRecall(ctx context.Context, w *models.Withdrawal) error
}

// PayoutMessage is the envelope pushed onto the payout queue
type PayoutMessage struct {
	Type          string    `json:"type"`
	WithdrawalID  string    `json:"withdrawalId"`
	AccountID     string    `json:"accountId"`
	Revision      int       `json:"revision"`
	NetAmount     string    `json:"netAmount"`
	Currency      string    `json:"currency"`
	BankName      string    `json:"bankName,omitempty"`
	AccountNumber string    `json:"accountNumber,omitempty"`
	XML           string    `json:"xml"`
	QueuedAt      time.Time `json:"queuedAt"`
}

type RedisPayoutQueue struct {
	redis    redis.Cmdable
	iso      *ISO20022Service
	settings SettingsSource
	now      func() time.Time
}

func NewRedisPayoutQueue(rdb redis.Cmdable, iso *ISO20022Service, settings SettingsSource) *RedisPayoutQueue {
	return &RedisPayoutQueue{redis: rdb, iso: iso, settings: settings, now: time.Now}
}

// PublishPayout queues a pacs.008 instruction for the net amount of an approved withdrawal.
func (q *RedisPayoutQueue) PublishPayout(ctx context.Context, w *models.Withdrawal) error {
	currency := q.settings.Current().Currency
	doc, err := q.iso.CreatePacs008(w, currency)
	if err != nil {
		return err
	}
	xmlData, err := q.iso.ConvertToXML(doc)
	if err != nil {
		return err
	}

	msg := PayoutMessage{
		Type:         "pacs.008",
		WithdrawalID: w.ID,
		AccountID:    w.AccountID,
		Revision:     w.Revision,
		NetAmount:    w.NetAmount.StringFixed(2),
		Currency:     currency,
		XML:          xmlData,
		QueuedAt:     q.now(),
	}
	if w.Destination != nil {
		msg.BankName = w.Destination.BankName
		msg.AccountNumber = w.Destination.AccountNumber
	}
	return q.push(ctx, msg)
}

// PublishRecall queues a pacs.002 rejection for a payout whose approval was undone.
func (q *RedisPayoutQueue) PublishRecall(ctx context.Context, w *models.Withdrawal) error {
	doc, err := q.iso.CreatePacs002(w, "RJCT")
	if err != nil {
		return err
	}
	xmlData, err := q.iso.ConvertToXML(doc)
	if err != nil {
		return err
	}
	return q.push(ctx, PayoutMessage{
		Type:         "pacs.002",
		WithdrawalID: w.ID,
		AccountID:    w.AccountID,
		Revision:     w.Revision,
		NetAmount:    w.NetAmount.StringFixed(2),
		Currency:     q.settings.Current().Currency,
		XML:          xmlData,
		QueuedAt:     q.now(),
	})
}

func (q *RedisPayoutQueue) push(ctx context.Context, msg PayoutMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.redis.RPush(ctx, PayoutQueueKey, string(payload)).Err(); err != nil {
		return fmt.Errorf("queue %s for withdrawal %s: %w", msg.Type, msg.WithdrawalID, err)
	}
	log.Printf("[PAYOUT] Queued %s for withdrawal %s (%s %s)", msg.Type, msg.WithdrawalID, msg.NetAmount, msg.Currency)
	return nil
}
