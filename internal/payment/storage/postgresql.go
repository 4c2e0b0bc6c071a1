package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a store over an existing connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{db: db, log: log}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.Info("DATABASE", "Payment storage initialized with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", "Connecting to PostgreSQL")

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db, log: log}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment tables if not exist")

	transactionsQuery := `
    CREATE TABLE IF NOT EXISTS payment_transactions (
        transaction_id VARCHAR(64) PRIMARY KEY,
        booking_id VARCHAR(64),
        order_id VARCHAR(64),
        amount DECIMAL(12,3) NOT NULL DEFAULT 0,
        currency VARCHAR(3) NOT NULL DEFAULT '',
        provider VARCHAR(50) NOT NULL DEFAULT 'pawapay',
        status VARCHAR(20) NOT NULL,
        failure_reason TEXT,
        provider_response_raw TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(transactionsQuery); err != nil {
		return fmt.Errorf("failed to create payment_transactions table: %w", err)
	}

	payoutsQuery := `
    CREATE TABLE IF NOT EXISTS payouts (
        id VARCHAR(64) PRIMARY KEY,
        booking_id VARCHAR(64),
        host_id VARCHAR(64),
        amount DECIMAL(12,3) NOT NULL,
        currency VARCHAR(3) NOT NULL DEFAULT '',
        phone_number VARCHAR(20) NOT NULL,
        provider VARCHAR(50) NOT NULL,
        status VARCHAR(20) NOT NULL,
        provider_payout_id VARCHAR(64),
        failure_reason TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(payoutsQuery); err != nil {
		return fmt.Errorf("failed to create payouts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payment_transactions_order_id ON payment_transactions(order_id);",
		"CREATE INDEX IF NOT EXISTS idx_payment_transactions_booking_id ON payment_transactions(booking_id);",
		"CREATE INDEX IF NOT EXISTS idx_payment_transactions_status ON payment_transactions(status);",
		"CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payment tables and indexes ready")
	return nil
}

// SaveTransaction upserts the transaction row for a deposit id. At most
// one row exists per transaction_id; non-terminal statuses may be
// rewritten freely.
func (s *PostgreSQLStore) SaveTransaction(tx *models.PaymentTransaction) error {
	s.log.LogDatabase("UPSERT", "payment_transactions", fmt.Sprintf("Saving transaction %s (%s)", tx.TransactionID, tx.Status))

	query := `
    INSERT INTO payment_transactions (
        transaction_id, booking_id, order_id, amount, currency, provider,
        status, failure_reason, provider_response_raw, created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
    ON CONFLICT (transaction_id) DO UPDATE SET
        status = EXCLUDED.status,
        failure_reason = EXCLUDED.failure_reason,
        provider_response_raw = EXCLUDED.provider_response_raw,
        updated_at = EXCLUDED.updated_at
    `

	_, err := s.db.Exec(query,
		tx.TransactionID, tx.BookingID, tx.OrderID, tx.Amount, tx.Currency,
		tx.Provider, tx.Status, tx.FailureReason, tx.ProviderResponseRaw, time.Now(),
	)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save transaction %s: %s", tx.TransactionID, err.Error()))
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	return nil
}

func (s *PostgreSQLStore) GetTransaction(transactionID string) (*models.PaymentTransaction, error) {
	query := `
    SELECT transaction_id, COALESCE(booking_id, ''), COALESCE(order_id, ''), amount, currency,
           provider, status, COALESCE(failure_reason, ''), COALESCE(provider_response_raw, ''),
           created_at, updated_at
    FROM payment_transactions WHERE transaction_id = $1
    `

	tx := &models.PaymentTransaction{}
	err := s.db.QueryRow(query, transactionID).Scan(
		&tx.TransactionID, &tx.BookingID, &tx.OrderID, &tx.Amount, &tx.Currency,
		&tx.Provider, &tx.Status, &tx.FailureReason, &tx.ProviderResponseRaw,
		&tx.CreatedAt, &tx.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get transaction %s: %s", transactionID, err.Error()))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

// MarkTerminal writes a terminal status only when the existing row is
// not already terminal. Two racing callbacks for the same deposit can
// both pass an application-level "not yet terminal" read; this guard
// ensures only one of them applies side effects.
func (s *PostgreSQLStore) MarkTerminal(tx *models.PaymentTransaction) (bool, error) {
	s.log.LogDatabase("CAS", "payment_transactions", fmt.Sprintf("Marking transaction %s terminal (%s)", tx.TransactionID, tx.Status))

	query := `
    INSERT INTO payment_transactions (
        transaction_id, booking_id, order_id, amount, currency, provider,
        status, failure_reason, provider_response_raw, created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
    ON CONFLICT (transaction_id) DO UPDATE SET
        status = EXCLUDED.status,
        failure_reason = EXCLUDED.failure_reason,
        provider_response_raw = EXCLUDED.provider_response_raw,
        updated_at = EXCLUDED.updated_at
    WHERE payment_transactions.status NOT IN ('COMPLETED', 'FAILED', 'REJECTED', 'CANCELLED')
    `

	result, err := s.db.Exec(query,
		tx.TransactionID, tx.BookingID, tx.OrderID, tx.Amount, tx.Currency,
		tx.Provider, tx.Status, tx.FailureReason, tx.ProviderResponseRaw, time.Now(),
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to mark transaction %s terminal: %s", tx.TransactionID, err.Error()))
		return false, fmt.Errorf("failed to mark transaction terminal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgreSQLStore) ListTransactionsByOrder(orderID string) ([]*models.PaymentTransaction, error) {
	query := `
    SELECT transaction_id, COALESCE(booking_id, ''), COALESCE(order_id, ''), amount, currency,
           provider, status, COALESCE(failure_reason, ''), COALESCE(provider_response_raw, ''),
           created_at, updated_at
    FROM payment_transactions
    WHERE order_id = $1
    ORDER BY created_at DESC
    `

	rows, err := s.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.PaymentTransaction
	for rows.Next() {
		tx := &models.PaymentTransaction{}
		err := rows.Scan(
			&tx.TransactionID, &tx.BookingID, &tx.OrderID, &tx.Amount, &tx.Currency,
			&tx.Provider, &tx.Status, &tx.FailureReason, &tx.ProviderResponseRaw,
			&tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return transactions, nil
}

// ---------------- PAYOUTS ----------------

func (s *PostgreSQLStore) SavePayout(payout *models.Payout) error {
	s.log.LogDatabase("INSERT", "payouts", fmt.Sprintf("Saving payout %s", payout.ID))

	query := `
    INSERT INTO payouts (
        id, booking_id, host_id, amount, currency, phone_number, provider, status,
        provider_payout_id, failure_reason, created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
    `

	_, err := s.db.Exec(query,
		payout.ID, payout.BookingID, payout.HostID, payout.Amount, payout.Currency, payout.PhoneNumber,
		payout.Provider, payout.Status, payout.ProviderPayoutID, payout.FailureReason, time.Now(),
	)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payout %s: %s", payout.ID, err.Error()))
		return fmt.Errorf("failed to save payout: %w", err)
	}

	return nil
}

func (s *PostgreSQLStore) GetPayout(id string) (*models.Payout, error) {
	query := `
    SELECT id, COALESCE(booking_id, ''), COALESCE(host_id, ''), amount, currency, phone_number, provider, status,
           COALESCE(provider_payout_id, ''), COALESCE(failure_reason, ''), created_at, updated_at
    FROM payouts WHERE id = $1
    `

	payout := &models.Payout{}
	err := s.db.QueryRow(query, id).Scan(
		&payout.ID, &payout.BookingID, &payout.HostID, &payout.Amount, &payout.Currency, &payout.PhoneNumber,
		&payout.Provider, &payout.Status, &payout.ProviderPayoutID, &payout.FailureReason,
		&payout.CreatedAt, &payout.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payout %s: %s", id, err.Error()))
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}

	return payout, nil
}

func (s *PostgreSQLStore) UpdatePayout(payout *models.Payout) error {
	s.log.LogDatabase("UPDATE", "payouts", fmt.Sprintf("Updating payout %s to %s", payout.ID, payout.Status))

	// Terminal payout statuses are immutable, same discipline as deposits.
	query := `
    UPDATE payouts SET
        status = $1, provider_payout_id = $2, failure_reason = $3, updated_at = $4
    WHERE id = $5 AND status NOT IN ('completed', 'failed')
    `

	_, err := s.db.Exec(query,
		payout.Status, payout.ProviderPayoutID, payout.FailureReason, time.Now(), payout.ID,
	)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update payout %s: %s", payout.ID, err.Error()))
		return fmt.Errorf("failed to update payout: %w", err)
	}

	return nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
