package postgres

import (
	"context"
	"encoding/json"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository. The table rejects
// updates and deletes.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit log entry within tx.
func (r *AuditRepository) Create(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	oldValue, err := marshalState(log.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalState(log.NewValue)
	if err != nil {
		return err
	}

	_, err = conn(r.db, tx).Exec(ctx, `
		INSERT INTO audit_log (
			id, table_name, record_id, operation, old_value, new_value,
			actor, request_id, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID,
		log.TableName,
		log.RecordID,
		string(log.Operation),
		oldValue,
		newValue,
		log.Actor,
		log.RequestID,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)

	return err
}

// List retrieves audit logs newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	var c conditions
	if filter.TableName != "" {
		c.add("table_name = $%d", filter.TableName)
	}
	if filter.RecordID != "" {
		c.add("record_id = $%d", filter.RecordID)
	}
	if filter.Actor != "" {
		c.add("actor = $%d", filter.Actor)
	}
	where := c.where()
	page := c.page(filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, `
		SELECT id, table_name, record_id, operation, old_value, new_value,
		       actor, request_id, ip_address, user_agent, created_at
		FROM audit_log`+where+` ORDER BY created_at DESC, id DESC`+page, c.args...)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAuditLog)
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var (
		log                domain.AuditLog
		operation          string
		oldValue, newValue []byte
	)

	err := row.Scan(&log.ID, &log.TableName, &log.RecordID, &operation, &oldValue, &newValue,
		&log.Actor, &log.RequestID, &log.IPAddress, &log.UserAgent, &log.CreatedAt)
	if err != nil {
		return nil, err
	}

	log.Operation = domain.AuditOperation(operation)
	if oldValue != nil {
		_ = json.Unmarshal(oldValue, &log.OldValue)
	}
	if newValue != nil {
		_ = json.Unmarshal(newValue, &log.NewValue)
	}

	return &log, nil
}

// marshalState encodes an audit snapshot, keeping nil as SQL NULL.
func marshalState(v domain.JSON) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
