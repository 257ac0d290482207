package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var isoClock = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newTestISO() *ISO20022Service {
	iso := NewISO20022Service("EARNPKKA", "EarnHub Settlement")
	iso.now = func() time.Time { return isoClock }
	iso.newID = func() string { return "msg-0001" }
	return iso
}

func approvedWithdrawal() *models.Withdrawal {
	return &models.Withdrawal{
		ID:        "wd-42",
		AccountID: "user-1",
		Wallet:    models.WalletIncome,
		Amount:    dec("1000"),
		TaxAmount: dec("100"),
		NetAmount: dec("900"),
		Status:    models.WithdrawalApproved,
		Revision:  1,
		Destination: &models.BankDetails{
			BankName:      "Meezan Bank",
			BranchCode:    "MEZN",
			AccountTitle:  "Ali Khan",
			AccountNumber: "0101234567",
		},
	}
}

func TestISO20022Service_CreatePacs008(t *testing.T) {
	iso := newTestISO()

	doc, err := iso.CreatePacs008(approvedWithdrawal(), "PKR")
	require.NoError(t, err)
	require.Len(t, doc.CdtTrfTxInf, 1)
	assert.Equal(t, "wd-42-1", string(doc.CdtTrfTxInf[0].PmtId.EndToEndId))
	assert.Equal(t, 900.0, doc.CdtTrfTxInf[0].IntrBkSttlmAmt.Value)

	xmlData, err := iso.ConvertToXML(doc)
	require.NoError(t, err)
	assert.Contains(t, xmlData, "<?xml")
	assert.Contains(t, xmlData, "msg-0001")
	assert.Contains(t, xmlData, "PKR")
	assert.Contains(t, xmlData, "MEZN")
	assert.Contains(t, xmlData, "Ali Khan")
	assert.Contains(t, xmlData, "EARNPKKA")

	t.Run("no destination", func(t *testing.T) {
		w := approvedWithdrawal()
		w.Destination = nil
		_, err := iso.CreatePacs008(w, "PKR")
		assert.ErrorIs(t, err, ErrNoPayoutDestination)
	})

	t.Run("bad currency", func(t *testing.T) {
		_, err := iso.CreatePacs008(approvedWithdrawal(), "RUPEE")
		assert.Error(t, err)
	})
}

func TestISO20022Service_CreatePacs002(t *testing.T) {
	iso := newTestISO()

	doc, err := iso.CreatePacs002(approvedWithdrawal(), "RJCT")
	require.NoError(t, err)
	xmlData, err := iso.ConvertToXML(doc)
	require.NoError(t, err)
	assert.Contains(t, xmlData, "RJCT")
	assert.Contains(t, xmlData, "wd-42")

	_, err = iso.CreatePacs002(approvedWithdrawal(), "")
	assert.Error(t, err)
}

func expectedPayoutPayload(t *testing.T, iso *ISO20022Service, w *models.Withdrawal, recall bool) string {
	t.Helper()
	var (
		doc any
		err error
	)
	msg := PayoutMessage{
		WithdrawalID: w.ID,
		AccountID:    w.AccountID,
		Revision:     w.Revision,
		NetAmount:    "900.00",
		Currency:     "PKR",
		QueuedAt:     isoClock,
	}
	if recall {
		msg.Type = "pacs.002"
		doc, err = iso.CreatePacs002(w, "RJCT")
	} else {
		msg.Type = "pacs.008"
		msg.BankName = w.Destination.BankName
		msg.AccountNumber = w.Destination.AccountNumber
		doc, err = iso.CreatePacs008(w, "PKR")
	}
	require.NoError(t, err)
	msg.XML, err = iso.ConvertToXML(doc)
	require.NoError(t, err)
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(payload)
}

func TestRedisPayoutQueue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	iso := newTestISO()
	rdb, mock := redismock.NewClientMock()
	queue := NewRedisPayoutQueue(rdb, iso, env.provider)
	queue.now = func() time.Time { return isoClock }

	w := approvedWithdrawal()

	t.Run("payout", func(t *testing.T) {
		mock.ExpectRPush(PayoutQueueKey, expectedPayoutPayload(t, iso, w, false)).SetVal(1)
		require.NoError(t, queue.PublishPayout(ctx, w))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("recall", func(t *testing.T) {
		mock.ExpectRPush(PayoutQueueKey, expectedPayoutPayload(t, iso, w, true)).SetVal(2)
		require.NoError(t, queue.PublishRecall(ctx, w))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure", func(t *testing.T) {
		mock.ExpectRPush(PayoutQueueKey, expectedPayoutPayload(t, iso, w, false)).SetErr(errors.New("connection refused"))
		err := queue.PublishPayout(ctx, w)
		assert.ErrorContains(t, err, "wd-42")
	})

	t.Run("missing destination is not queued", func(t *testing.T) {
		bare := approvedWithdrawal()
		bare.Destination = nil
		assert.ErrorIs(t, queue.PublishPayout(ctx, bare), ErrNoPayoutDestination)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
