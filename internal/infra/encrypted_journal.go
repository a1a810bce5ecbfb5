package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	journalDBName = "journal.db"

	// DefaultHistoryLimit is used by Recent when no positive limit is given.
	DefaultHistoryLimit = 50
)

// EncryptedJournal implements domain.Journal using a SQLCipher encrypted
// SQLite database.
type EncryptedJournal struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedJournal opens (or creates) the journal database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedJournal(dataDir string, key []byte) (*EncryptedJournal, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, journalDBName)
	_, statErr := os.Stat(dbPath)
	existed := statErr == nil

	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on first read.
	var tables int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&tables); err != nil {
		db.Close()
		if existed {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrJournalKeyMismatch, dbPath, err)
		}
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	j := &EncryptedJournal{
		db:     db,
		dbPath: dbPath,
	}

	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return j, nil
}

func (j *EncryptedJournal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pid INTEGER NOT NULL,
		name TEXT NOT NULL,
		rule TEXT NOT NULL,
		priority INTEGER NOT NULL,
		result TEXT NOT NULL,
		dry_run INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT '',
		mode TEXT DEFAULT ''
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Report appends every record of the tick in one transaction.
// Ticks without records are not written.
func (j *EncryptedJournal) Report(ctx context.Context, result domain.TickResult) error {
	if len(result.Records) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (pid, name, rule, priority, result, dry_run, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range result.Records {
		_, err := stmt.ExecContext(ctx,
			r.PID, r.Name, r.Rule, r.Priority.Value(), r.Result.String(),
			boolToInt(r.DryRun), r.StartedAt.UnixMilli(), r.DurationMs)
		if err != nil {
			return fmt.Errorf("failed to record pid %d: %w", r.PID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit records, newest first.
func (j *EncryptedJournal) Recent(limit int) ([]domain.TerminationRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := j.db.Query(`
		SELECT pid, name, rule, priority, result, dry_run, started_at, duration_ms
		FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.TerminationRecord, 0)
	for rows.Next() {
		var (
			r         domain.TerminationRecord
			priority  int
			result    string
			dryRun    int
			startedAt int64
		)
		if err := rows.Scan(&r.PID, &r.Name, &r.Rule, &priority, &result, &dryRun, &startedAt, &r.DurationMs); err != nil {
			return nil, err
		}
		r.Priority = domain.Priority(priority)
		if r.Result, err = domain.ParseActionResult(result); err != nil {
			return nil, err
		}
		r.DryRun = dryRun != 0
		r.StartedAt = time.UnixMilli(startedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Heartbeat saves the daemon's identity and refreshes its liveness timestamp.
func (j *EncryptedJournal) Heartbeat(daemon domain.Daemon) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (id, pid, started_at, last_heartbeat, app_version, mode)
		VALUES (1, ?, ?, ?, ?, ?)`,
		daemon.PID, daemon.StartedAt.UnixMilli(), time.Now().UnixMilli(), daemon.AppVersion, daemon.Mode,
	)
	return err
}

// Status returns the last heartbeat, or nil if no daemon ever registered.
func (j *EncryptedJournal) Status() (*domain.DaemonStatus, error) {
	var (
		s         domain.DaemonStatus
		startedAt int64
		heartbeat int64
	)
	err := j.db.QueryRow(`
		SELECT pid, started_at, last_heartbeat, app_version, mode FROM daemon_state WHERE id = 1`).
		Scan(&s.PID, &startedAt, &heartbeat, &s.AppVersion, &s.Mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.StartedAt = time.UnixMilli(startedAt)
	s.LastHeartbeat = time.UnixMilli(heartbeat)
	return &s, nil
}

// Prune deletes all but the newest keep records.
func (j *EncryptedJournal) Prune(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := j.db.Exec(`
		DELETE FROM outcomes WHERE id NOT IN (
			SELECT id FROM outcomes ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Path returns the database file path.
func (j *EncryptedJournal) Path() string {
	return j.dbPath
}

// Close releases the database connection.
func (j *EncryptedJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure EncryptedJournal implements domain.Journal.
var _ domain.Journal = (*EncryptedJournal)(nil)
