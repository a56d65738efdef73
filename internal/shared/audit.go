package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions written by the application.
const (
	AuditCreated         = "created"
	AuditUpdated         = "updated"
	AuditDeleted         = "deleted"
	AuditApproved        = "approved"
	AuditRejected        = "rejected"
	AuditAdviceGenerated = "advice_generated"
	AuditImported        = "imported"
	AuditImportVendors   = "import_vendors"
	AuditImportInvoices  = "import_invoices"
	AuditLogin           = "login"
)

// AuditLog represents a record stored in audit_logs. A zero EntityID is
// stored as NULL.
type AuditLog struct {
	UserID     int64
	Action     string
	EntityType string
	EntityID   int64
	Details    string
	At         time.Time
}

// Execer is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertAudit appends log using db, which may be a transaction so the entry
// commits or rolls back together with the change it describes.
func InsertAudit(ctx context.Context, db Execer, log AuditLog) error {
	if log.Action == "" || log.EntityType == "" {
		return errors.New("audit log requires action/entity_type")
	}
	var userID, entityID any
	if log.UserID != 0 {
		userID = log.UserID
	}
	if log.EntityID != 0 {
		entityID = log.EntityID
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := db.Exec(ctx, `INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, userID, log.Action, log.EntityType, entityID, log.Details, at)
	return err
}

// AuditLogger writes records into audit_logs outside of a caller transaction.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	return InsertAudit(ctx, l.pool, log)
}
