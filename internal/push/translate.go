package push

import (
	"encoding/json"
	"fmt"

	"notigate/internal/notify"
)

// Translate maps a push envelope to the notification it produces.
//
// The mapping is total: every known kind yields at most one notification.
// ok=false means the kind is unknown (log and drop, not an error); err is
// reserved for malformed payloads of a known kind.
func Translate(env Envelope) (notify.Notification, bool, error) {
	switch env.Type {
	case TypeTransactionUpdate:
		var tu TransactionUpdate
		if err := json.Unmarshal(env.Data, &tu); err != nil {
			return notify.Notification{}, true, fmt.Errorf("transaction_update: %w", err)
		}
		n, err := transactionNotification(tu)
		return n, true, err

	case TypeBalanceUpdate:
		var bu BalanceUpdate
		if err := json.Unmarshal(env.Data, &bu); err != nil {
			return notify.Notification{}, true, fmt.Errorf("balance_update: %w", err)
		}
		return balanceNotification(bu), true, nil

	case TypeInvoicePaid:
		var ip InvoicePaid
		if err := json.Unmarshal(env.Data, &ip); err != nil {
			return notify.Notification{}, true, fmt.Errorf("invoice_paid: %w", err)
		}
		return invoiceNotification(ip), true, nil

	case TypeSystemAlert:
		var sa SystemAlert
		if err := json.Unmarshal(env.Data, &sa); err != nil {
			return notify.Notification{}, true, fmt.Errorf("system_alert: %w", err)
		}
		return alertNotification(sa.Alert), true, nil

	case TypeUserNotification:
		// Pre-built payload, passed through verbatim.
		var n notify.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return notify.Notification{}, true, fmt.Errorf("user_notification: %w", err)
		}
		return n, true, nil

	default:
		return notify.Notification{}, false, nil
	}
}

func transactionNotification(tu TransactionUpdate) (notify.Notification, error) {
	base := notify.Notification{
		ID:       "tx-" + tu.TransactionID + "-" + tu.Status,
		Category: "transaction",
		Metadata: map[string]string{"transaction_id": tu.TransactionID},
		Action: &notify.Action{
			URL:   "/transactions/" + tu.TransactionID,
			Label: "View transaction",
		},
	}
	if tu.TxHash != "" {
		base.Metadata["tx_hash"] = tu.TxHash
	}

	switch tu.Status {
	case TxConfirmed:
		base.Kind = notify.KindSuccess
		base.Priority = notify.PriorityMedium
		base.Title = "Transaction Confirmed"
		base.Message = fmt.Sprintf("Transaction %s confirmed (%d confirmations)",
			shortID(tu.TransactionID), tu.Confirmations)
	case TxFailed:
		base.Kind = notify.KindError
		base.Priority = notify.PriorityHigh
		base.Title = "Transaction Failed"
		base.ActionRequired = true
		if tu.FailureReason != "" {
			base.Message = fmt.Sprintf("Transaction %s failed: %s", shortID(tu.TransactionID), tu.FailureReason)
		} else {
			base.Message = fmt.Sprintf("Transaction %s failed", shortID(tu.TransactionID))
		}
	case TxPending:
		base.Kind = notify.KindInfo
		base.Priority = notify.PriorityLow
		base.Title = "Transaction Pending"
		base.Message = fmt.Sprintf("Transaction %s pending (%d confirmations)",
			shortID(tu.TransactionID), tu.Confirmations)
	default:
		return notify.Notification{}, fmt.Errorf("transaction_update: unknown status %q", tu.Status)
	}
	return base, nil
}

func balanceNotification(bu BalanceUpdate) notify.Notification {
	return notify.Notification{
		Kind:     notify.KindInfo,
		Priority: notify.PriorityLow,
		Category: "wallet",
		Title:    "Balance Updated",
		Message: fmt.Sprintf("%s on %s: %s (%.2f USD)",
			shortID(bu.Address), bu.Blockchain, bu.Balance, bu.USDValue),
		Metadata: map[string]string{
			"address":    bu.Address,
			"blockchain": bu.Blockchain,
		},
	}
}

func invoiceNotification(ip InvoicePaid) notify.Notification {
	return notify.Notification{
		ID:       "invoice-" + ip.InvoiceID,
		Kind:     notify.KindSuccess,
		Priority: notify.PriorityMedium,
		Category: "merchant",
		Title:    "Invoice Paid",
		Message:  fmt.Sprintf("Invoice %s paid: %s", shortID(ip.InvoiceID), ip.Amount),
		Action: &notify.Action{
			URL:   "/invoices/" + ip.InvoiceID,
			Label: "View invoice",
		},
		Metadata: map[string]string{
			"invoice_id":     ip.InvoiceID,
			"transaction_id": ip.TransactionID,
		},
	}
}

func alertNotification(a AlertBody) notify.Notification {
	n := notify.Notification{
		ID:       a.ID,
		Category: "system",
		Title:    a.Title,
		Message:  a.Message,
	}
	if a.Source != "" {
		n.Metadata = map[string]string{"source": a.Source}
	}
	switch a.Type {
	case "warning":
		n.Kind = notify.KindWarning
		n.Priority = notify.PriorityMedium
	case "error":
		n.Kind = notify.KindError
		n.Priority = notify.PriorityHigh
	case "critical":
		// Critical alerts cut through quiet hours and stay up until
		// acted on.
		n.Kind = notify.KindError
		n.Priority = notify.PriorityCritical
		n.Persistent = true
	default:
		n.Kind = notify.KindInfo
		n.Priority = notify.PriorityMedium
	}
	return n
}

// ConnectionNotification reports feed connectivity changes. It is produced
// by the transport itself rather than decoded from a message.
func ConnectionNotification(connected bool, detail string) notify.Notification {
	if connected {
		return notify.Notification{
			Kind:     notify.KindSuccess,
			Priority: notify.PriorityLow,
			Category: "system",
			Title:    "Connection Restored",
			Message:  "Realtime updates are back online",
		}
	}
	msg := "Realtime updates interrupted; retrying"
	if detail != "" {
		msg = "Realtime updates interrupted: " + detail
	}
	return notify.Notification{
		Kind:     notify.KindWarning,
		Priority: notify.PriorityMedium,
		Category: "system",
		Title:    "Connection Lost",
		Message:  msg,
	}
}

// shortID trims long hashes/addresses for display.
func shortID(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
