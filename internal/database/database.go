package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"fondarelay/internal/constants"
	"fondarelay/internal/migrations"
	"fondarelay/internal/models"
	"fondarelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// ErrConcurrentUpdate is returned when a guarded update finds the stalled
// message no longer pending.
var ErrConcurrentUpdate = stderrors.New("stalled message is no longer pending")

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		dbPath, constants.DefaultDatabaseBusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeWith(db, "failed to ping database", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		return nil, closeWith(db, "failed to read schema", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, closeWith(db, "failed to initialize schema", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		return nil, closeWith(db, "failed to initialize encryptor", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func closeWith(db *sql.DB, msg string, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%s: %w (close error: %v)", msg, err, closeErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// EncryptionEnabled reports whether stored secrets and payloads are encrypted.
func (d *Database) EncryptionEnabled() bool {
	return d.encryptor.Enabled()
}

func (d *Database) Close() error {
	return d.db.Close()
}

// HealthCheck verifies the database is reachable
func (d *Database) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// SaveTenant inserts a tenant or updates the existing record with the same slug.
func (d *Database) SaveTenant(ctx context.Context, tenant *models.Tenant) error {
	secret, err := d.encryptor.Encrypt(tenant.UpstreamRelaySecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt relay secret: %w", err)
	}

	now := time.Now().UTC()
	p := tenant.Permissions
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertTenantQuery,
			tenant.Slug, tenant.Name, tenant.URL, tenant.TimeoutSec, tenant.MaxItems,
			p.Outgoing, p.SMS, p.MMS, p.Call, p.SendStatus, p.DeviceStatus, p.Sent,
			tenant.AutomaticReply, tenant.AutomaticReplyText, tenant.ReplySamePhone,
			tenant.UpstreamRelayURL, secret, now, now,
		)
		return err
	}, "save tenant")
}

// GetTenant returns nil without error when no tenant has the slug.
func (d *Database) GetTenant(ctx context.Context, slug string) (*models.Tenant, error) {
	tenant, err := d.scanTenant(d.db.QueryRowContext(ctx, SelectTenantBySlugQuery, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", slug, err)
	}
	return tenant, nil
}

func (d *Database) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := d.db.QueryContext(ctx, SelectAllTenantsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := d.scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanTenant(row rowScanner) (*models.Tenant, error) {
	var tenant models.Tenant
	var secret string
	p := &tenant.Permissions
	err := row.Scan(
		&tenant.Slug, &tenant.Name, &tenant.URL, &tenant.TimeoutSec, &tenant.MaxItems,
		&p.Outgoing, &p.SMS, &p.MMS, &p.Call, &p.SendStatus, &p.DeviceStatus, &p.Sent,
		&tenant.AutomaticReply, &tenant.AutomaticReplyText, &tenant.ReplySamePhone,
		&tenant.UpstreamRelayURL, &secret, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tenant.UpstreamRelaySecret, err = d.encryptor.Decrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt relay secret: %w", err)
	}
	return &tenant, nil
}

// InsertStalledMessage persists a new queue entry and sets its ID.
func (d *Database) InsertStalledMessage(ctx context.Context, msg *models.StalledMessage) error {
	phone, err := d.encryptor.EncryptForLookup(msg.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone tag: %w", err)
	}
	payload, err := d.encryptor.Encrypt(string(msg.Payload))
	if err != nil {
		return fmt.Errorf("failed to encrypt payload: %w", err)
	}

	id, err := retryableDBOperation(ctx, func() (int64, error) {
		res, err := d.db.ExecContext(ctx, InsertStalledMessageQuery,
			msg.TenantSlug, msg.Direction, msg.Status, phone, payload,
			msg.CreatedAt.UTC(), msg.OriginatedAt.UTC(), msg.AlteredAt.UTC(),
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}, "insert stalled message")
	if err != nil {
		return err
	}

	msg.ID = id
	return nil
}

// GetStalledMessage returns nil without error for an unknown id.
func (d *Database) GetStalledMessage(ctx context.Context, id int64) (*models.StalledMessage, error) {
	msg, err := d.scanStalled(d.db.QueryRowContext(ctx, SelectStalledMessageByIDQuery, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stalled message %d: %w", id, err)
	}
	return msg, nil
}

// HasPending is an indexed existence check.
func (d *Database) HasPending(ctx context.Context, slug string, direction models.Direction) (bool, error) {
	var exists bool
	if err := d.db.QueryRowContext(ctx, ExistsPendingQuery, slug, direction).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending messages: %w", err)
	}
	return exists, nil
}

func (d *Database) CountPending(ctx context.Context, slug string, direction models.Direction) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, CountPendingQuery, slug, direction).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return count, nil
}

// ListPending returns the tenant's pending messages in one direction, oldest
// first.
func (d *Database) ListPending(ctx context.Context, slug string, direction models.Direction) ([]*models.StalledMessage, error) {
	rows, err := d.db.QueryContext(ctx, SelectPendingQuery, slug, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()
	return d.collectStalled(rows)
}

// ListPendingTowardDevice returns untagged pending messages, plus those
// tagged with phone when includeTagged is set, oldest first.
func (d *Database) ListPendingTowardDevice(ctx context.Context, slug, phone string, includeTagged bool) ([]*models.StalledMessage, error) {
	var rows *sql.Rows
	var err error
	if includeTagged && phone != "" {
		tag, encErr := d.encryptor.EncryptForLookup(phone)
		if encErr != nil {
			return nil, fmt.Errorf("failed to encrypt phone tag: %w", encErr)
		}
		rows, err = d.db.QueryContext(ctx, SelectPendingTowardDeviceWithTagQuery, slug, tag)
	} else {
		rows, err = d.db.QueryContext(ctx, SelectPendingTowardDeviceUntaggedQuery, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending toward-device messages: %w", err)
	}
	defer rows.Close()
	return d.collectStalled(rows)
}

func (d *Database) collectStalled(rows *sql.Rows) ([]*models.StalledMessage, error) {
	var messages []*models.StalledMessage
	for rows.Next() {
		msg, err := d.scanStalled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stalled message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ApplyDrain writes every update in one transaction. If any message is no
// longer pending the whole drain is rolled back.
func (d *Database) ApplyDrain(ctx context.Context, updates []models.DrainUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, UpdateStalledMessageQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range updates {
			payload, err := d.encryptor.Encrypt(string(u.Payload))
			if err != nil {
				return fmt.Errorf("failed to encrypt payload: %w", err)
			}
			res, err := stmt.ExecContext(ctx, u.Status, payload, u.AlteredAt.UTC(), u.ID)
			if err != nil {
				return err
			}
			if err := expectOneRow(res, u.ID); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, "apply drain")
}

// MarkSent moves a pending message to sent.
func (d *Database) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, UpdateStalledStatusQuery, models.QueueStatusSent, at.UTC(), id)
		if err != nil {
			return err
		}
		return expectOneRow(res, id)
	}, "mark stalled message sent")
}

// Touch records a failed delivery attempt on a pending message.
func (d *Database) Touch(ctx context.Context, id int64, at time.Time) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, TouchStalledMessageQuery, at.UTC(), id)
		if err != nil {
			return err
		}
		return expectOneRow(res, id)
	}, "touch stalled message")
}

// TenantsWithPending lists slugs that have at least one pending message in the direction.
func (d *Database) TenantsWithPending(ctx context.Context, direction models.Direction) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, SelectTenantsWithPendingQuery, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants with pending messages: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan tenant slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

func (d *Database) scanStalled(row rowScanner) (*models.StalledMessage, error) {
	var msg models.StalledMessage
	var phone, payload string
	err := row.Scan(
		&msg.ID, &msg.TenantSlug, &msg.Direction, &msg.Status, &phone, &payload,
		&msg.CreatedAt, &msg.OriginatedAt, &msg.AlteredAt,
	)
	if err != nil {
		return nil, err
	}

	msg.PhoneNumber, err = d.encryptor.Decrypt(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone tag: %w", err)
	}
	plain, err := d.encryptor.Decrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	msg.Payload = []byte(plain)
	return &msg, nil
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("stalled message %d: %w", id, ErrConcurrentUpdate)
	}
	return nil
}
