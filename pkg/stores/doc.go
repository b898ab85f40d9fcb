// Package stores provides the persistence layer for StackPilot.
// It includes SQLite-based storage with WAL mode, connection pooling,
// embedded schema migrations, and CRUD operations for tenants,
// deployment records, and the audit trail.
package stores
