package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether the error is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateTenant creates a new tenant record
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *TenantRecord) error {
	query := `
		INSERT INTO tenants (id, slug, name, aws_account_id, region, role_arn, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Slug,
		tenant.Name,
		tenant.AWSAccountID,
		tenant.Region,
		tenant.RoleARN,
		tenant.ExternalID,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("tenant %q: %w", tenant.Slug, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetTenantBySlug retrieves a tenant by slug
func (s *SQLiteStore) GetTenantBySlug(ctx context.Context, slug string) (*TenantRecord, error) {
	query := `
		SELECT id, slug, name, aws_account_id, region, role_arn, external_id, created_at, updated_at
		FROM tenants
		WHERE slug = ?
	`

	tenant := &TenantRecord{}
	err := s.db.QueryRowContext(ctx, query, slug).Scan(
		&tenant.ID,
		&tenant.Slug,
		&tenant.Name,
		&tenant.AWSAccountID,
		&tenant.Region,
		&tenant.RoleARN,
		&tenant.ExternalID,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// ListTenants lists all tenants
func (s *SQLiteStore) ListTenants(ctx context.Context) ([]*TenantRecord, error) {
	query := `
		SELECT id, slug, name, aws_account_id, region, role_arn, external_id, created_at, updated_at
		FROM tenants
		ORDER BY slug
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*TenantRecord{}
	for rows.Next() {
		tenant := &TenantRecord{}
		err := rows.Scan(
			&tenant.ID,
			&tenant.Slug,
			&tenant.Name,
			&tenant.AWSAccountID,
			&tenant.Region,
			&tenant.RoleARN,
			&tenant.ExternalID,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

// DeleteTenant deletes a tenant by slug. Returns false if no tenant existed.
func (s *SQLiteStore) DeleteTenant(ctx context.Context, slug string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE slug = ?`, slug)
	if err != nil {
		return false, fmt.Errorf("failed to delete tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// CreateDeployment creates a new deployment record in status pending.
// Returns ErrAlreadyExists if a record for the stack key is already present.
func (s *SQLiteStore) CreateDeployment(ctx context.Context, record *DeploymentRecord) (*DeploymentRecord, error) {
	query := `
		INSERT INTO deployments (tenant_id, tenant_slug, environment, stack_name, region, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	status := record.Status
	if status == "" {
		status = DeploymentStatusPending
	}

	result, err := s.db.ExecContext(ctx, query,
		record.TenantID,
		record.TenantSlug,
		record.Environment,
		record.StackName,
		record.Region,
		status,
		now,
		now,
	)

	if isUniqueViolation(err) {
		return nil, fmt.Errorf("deployment %q: %w", record.StackName, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert id: %w", err)
	}

	return s.getDeploymentByID(ctx, id)
}

const deploymentColumns = `id, tenant_id, tenant_slug, environment, stack_name, region, status, operation_id, outputs, error_message, created_at, updated_at`

func scanDeployment(row interface{ Scan(...any) error }) (*DeploymentRecord, error) {
	record := &DeploymentRecord{}
	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.TenantSlug,
		&record.Environment,
		&record.StackName,
		&record.Region,
		&record.Status,
		&record.OperationID,
		&record.Outputs,
		&record.ErrorMessage,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *SQLiteStore) getDeploymentByID(ctx context.Context, id int64) (*DeploymentRecord, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = ?`

	record, err := scanDeployment(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}

	return record, nil
}

func (s *SQLiteStore) getDeploymentByStack(ctx context.Context, stackName string) (*DeploymentRecord, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE stack_name = ?`

	record, err := scanDeployment(s.db.QueryRowContext(ctx, query, stackName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment %q: %w", stackName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}

	return record, nil
}

// GetDeployment retrieves a deployment by tenant slug and environment
func (s *SQLiteStore) GetDeployment(ctx context.Context, tenantSlug, environment string) (*DeploymentRecord, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE tenant_slug = ? AND environment = ?`

	record, err := scanDeployment(s.db.QueryRowContext(ctx, query, tenantSlug, environment))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment %s/%s: %w", tenantSlug, environment, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}

	return record, nil
}

// UpdateDeploymentStatus transitions a deployment to the given status.
// Nil fields in upd are left untouched unless their clear flag is set.
func (s *SQLiteStore) UpdateDeploymentStatus(ctx context.Context, stackName string, status DeploymentStatus, upd DeploymentUpdate) (*DeploymentRecord, error) {
	query := `
		UPDATE deployments
		SET status = ?,
		    operation_id = CASE WHEN ? THEN NULL ELSE COALESCE(?, operation_id) END,
		    outputs = COALESCE(?, outputs),
		    error_message = CASE WHEN ? THEN NULL ELSE COALESCE(?, error_message) END,
		    updated_at = ?
		WHERE stack_name = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		upd.ClearOperationID,
		upd.OperationID,
		upd.Outputs,
		upd.ClearErrorMessage,
		upd.ErrorMessage,
		time.Now().UTC(),
		stackName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update deployment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("deployment %q: %w", stackName, ErrNotFound)
	}

	return s.getDeploymentByStack(ctx, stackName)
}

// UpdateDeploymentStatusIf transitions a deployment to the given status only if
// its current status is one of expect. The conditional write is what prevents a
// stale background writer from reverting a status another path already advanced.
// Returns false without error when the guard did not match.
func (s *SQLiteStore) UpdateDeploymentStatusIf(ctx context.Context, stackName string, expect []DeploymentStatus, status DeploymentStatus, upd DeploymentUpdate) (bool, error) {
	if len(expect) == 0 {
		return false, fmt.Errorf("expected statuses must not be empty")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(expect)), ", ")
	query := `
		UPDATE deployments
		SET status = ?,
		    operation_id = CASE WHEN ? THEN NULL ELSE COALESCE(?, operation_id) END,
		    outputs = COALESCE(?, outputs),
		    error_message = CASE WHEN ? THEN NULL ELSE COALESCE(?, error_message) END,
		    updated_at = ?
		WHERE stack_name = ? AND status IN (` + placeholders + `)
	`

	args := []any{
		status,
		upd.ClearOperationID,
		upd.OperationID,
		upd.Outputs,
		upd.ClearErrorMessage,
		upd.ErrorMessage,
		time.Now().UTC(),
		stackName,
	}
	for _, st := range expect {
		args = append(args, st)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update deployment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// ResetDeployment returns an existing record to pending for a fresh deploy
// attempt, clearing the operation id, cached outputs and error message. The
// reset only applies while the record is in a redeployable status.
func (s *SQLiteStore) ResetDeployment(ctx context.Context, stackName string) (*DeploymentRecord, error) {
	query := `
		UPDATE deployments
		SET status = ?, operation_id = NULL, outputs = NULL, error_message = NULL, updated_at = ?
		WHERE stack_name = ? AND status IN (?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		DeploymentStatusPending,
		time.Now().UTC(),
		stackName,
		DeploymentStatusPending,
		DeploymentStatusFailed,
		DeploymentStatusDestroyed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset deployment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.getDeploymentByStack(ctx, stackName); getErr != nil {
			return nil, getErr
		}
		// Record exists but moved to a non-redeployable status concurrently.
		return nil, fmt.Errorf("deployment %q: %w", stackName, ErrAlreadyExists)
	}

	return s.getDeploymentByStack(ctx, stackName)
}

// ListDeployments lists deployments, optionally filtered by tenant slug
func (s *SQLiteStore) ListDeployments(ctx context.Context, tenantSlug string) ([]*DeploymentRecord, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments`
	args := []any{}
	if tenantSlug != "" {
		query += ` WHERE tenant_slug = ?`
		args = append(args, tenantSlug)
	}
	query += ` ORDER BY stack_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	records := []*DeploymentRecord{}
	for rows.Next() {
		record, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// DeleteDeployment deletes a deployment record by stack name.
// Returns false if no record existed.
func (s *SQLiteStore) DeleteDeployment(ctx context.Context, stackName string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deployments WHERE stack_name = ?`, stackName)
	if err != nil {
		return false, fmt.Errorf("failed to delete deployment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// CreateAuditEntry appends an audit entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (action, actor, stack_name, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.StackName,
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries lists audit entries, optionally filtered by stack name
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, stackName string, limit, offset int) ([]*AuditEntry, error) {
	query := `SELECT id, action, actor, stack_name, details, timestamp FROM audit`
	args := []any{}
	if stackName != "" {
		query += ` WHERE stack_name = ?`
		args = append(args, stackName)
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.StackName,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// HealthCheck verifies the database connection
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
