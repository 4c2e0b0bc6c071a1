package storage

import (
	"errors"

	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

// ErrTransactionNotFound is returned when no row exists for a deposit id.
var ErrTransactionNotFound = errors.New("payment transaction not found")

// ErrPayoutNotFound is returned when no row exists for a payout id.
var ErrPayoutNotFound = errors.New("payout not found")

type Store interface {
	// Deposit transaction log
	SaveTransaction(tx *models.PaymentTransaction) error
	GetTransaction(transactionID string) (*models.PaymentTransaction, error)
	// MarkTerminal performs a compare-and-set write of a terminal
	// status: it only succeeds when the row is not already terminal.
	// The boolean reports whether this call applied the transition.
	MarkTerminal(tx *models.PaymentTransaction) (bool, error)
	ListTransactionsByOrder(orderID string) ([]*models.PaymentTransaction, error)

	// Payouts
	SavePayout(payout *models.Payout) error
	GetPayout(id string) (*models.Payout, error)
	UpdatePayout(payout *models.Payout) error

	// Health and maintenance
	Close() error
	HealthCheck() error
}
