package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/earnhub/backend/internal/models"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	Wallet        string    `json:"wallet,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger writes one AUDIT line per money movement or admin action
type Logger struct {
	out *log.Logger
}

func NewLogger() *Logger {
	return &Logger{out: log.Default()}
}

// NewLoggerTo writes audit lines to a specific logger.
func NewLoggerTo(out *log.Logger) *Logger {
	return &Logger{out: out}
}

func (a *Logger) LogPosting(entry *models.LedgerEntry, replayed bool) {
	status := "POSTED"
	if replayed {
		status = "REPLAYED"
	}
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "LEDGER_" + string(entry.Reason),
		TransactionID: entry.RelatedTransactionID,
		AccountID:     entry.AccountID,
		Wallet:        string(entry.Wallet),
		Amount:        entry.Delta.StringFixed(2),
		Status:        status,
		Details: map[string]string{
			"entry_id":        entry.ID,
			"balance_after":   entry.BalanceAfter.StringFixed(2),
			"idempotency_key": entry.IdempotencyKey,
		},
	})
}

func (a *Logger) LogError(transactionID, accountID string, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		AccountID:     accountID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) LogOperation(transactionID, accountID, operation, details string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     operation,
		TransactionID: transactionID,
		AccountID:     accountID,
		Status:        "SUCCESS",
		Details:       map[string]string{"details": details},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
