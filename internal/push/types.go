// Package push translates typed backend push messages into notifications.
//
// The mapping table in translate.go is the authoritative contract for what
// end users see; change it deliberately.
package push

import (
	"encoding/json"
	"time"
)

// Message kinds accepted from the backend feed.
const (
	TypeTransactionUpdate = "transaction_update"
	TypeBalanceUpdate     = "balance_update"
	TypeInvoicePaid       = "invoice_paid"
	TypeSystemAlert       = "system_alert"
	TypeUserNotification  = "user_notification"
)

// Envelope is the wire form of a push message: a kind tag plus an untyped
// payload decoded per kind.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Transaction statuses carried by transaction_update.
const (
	TxConfirmed = "confirmed"
	TxFailed    = "failed"
	TxPending   = "pending"
)

type TransactionUpdate struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Confirmations int    `json:"confirmations"`
	TxHash        string `json:"txHash,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

type BalanceUpdate struct {
	Address    string  `json:"address"`
	Blockchain string  `json:"blockchain"`
	Balance    string  `json:"balance"`
	USDValue   float64 `json:"usdValue"`
}

type InvoicePaid struct {
	InvoiceID     string    `json:"invoiceId"`
	TransactionID string    `json:"transactionId"`
	Amount        string    `json:"amount"`
	PaidAt        time.Time `json:"paidAt"`
}

// SystemAlert wraps an operator-issued broadcast.
type SystemAlert struct {
	Alert AlertBody `json:"alert"`
}

type AlertBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // info | warning | error | critical
	Title   string `json:"title"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}
