// Package wallet is a crash-safe local store for webcash claim codes.
// Every secret that enters the wallet is written to a plain-text recovery
// log before it touches the database, so the wallet can be reconstructed
// by replaying the log even after database corruption.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/webcash"
)

type Term struct {
	ID        uint   `gorm:"primaryKey"`
	Body      string `gorm:"uniqueIndex"`
	Timestamp int64
}

// Secret is an append-only record of every claim code the wallet has ever
// held.  Sweep marks secrets that were exposed to an outside party and must
// not be treated as spendable.
type Secret struct {
	ID        uint `gorm:"primaryKey"`
	Timestamp int64
	Secret    string `gorm:"uniqueIndex"`
	Mine      bool
	Sweep     bool
}

// Output tracks the ledger-side state of a claim code.  Spent transitions
// false to true exactly once.
type Output struct {
	ID        uint `gorm:"primaryKey"`
	Timestamp int64
	Hash      []byte `gorm:"index;size:32"`
	SecretID  *uint
	Amount    int64
	Spent     bool
}

// Replacer is the server operation the sweep depends on.  Satisfied by
// client.Client.
type Replacer interface {
	Replace(ctx context.Context, inputs, outputs []webcash.SecretWebcash) error
}

type Wallet struct {
	mu       sync.Mutex
	db       *gorm.DB
	lock     *flock.Flock
	log      *os.File
	replacer Replacer
}

// Open creates (if needed) <path>.db and the <path>.bak recovery log, and
// takes the advisory lock that keeps a second process out.  The path may
// name either wallet file or their shared basename.
func Open(path string, replacer Replacer) (*Wallet, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(path, ".db"), ".bak")
	dbPath := base + ".db"
	logPath := base + ".bak"

	// The locking primitives need the file to exist, and an empty file is
	// a valid sqlite database.
	touch, err := os.OpenFile(dbPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to open/create wallet database file: %w", err)
	}
	touch.Close()

	lock := flock.New(dbPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.New("unable to lock wallet database; wallet is in use by another process")
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	db, err := gorm.Open(sqlite.Open(dbPath), cfg)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("unable to open wallet database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Term{}, &Secret{}, &Output{}); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("unable to migrate wallet database: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		if sqlDB, dberr := db.DB(); dberr == nil {
			sqlDB.Close()
		}
		lock.Unlock()
		return nil, fmt.Errorf("unable to open/create wallet recovery file: %w", err)
	}

	return &Wallet{db: db, lock: lock, log: logFile, replacer: replacer}, nil
}

// Close waits for in-flight wallet operations, then releases the database,
// the advisory lock, and the recovery log, in that order.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if sqlDB, err := w.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Errorf("error closing wallet database, data loss may have occured: %v", err)
			firstErr = err
		}
	}
	if err := w.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// HaveAcceptedTerms reports whether any terms of service have ever been
// accepted.
func (w *Wallet) HaveAcceptedTerms() (bool, error) {
	var n int64
	if err := w.db.Model(&Term{}).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// AreTermsAccepted reports whether this exact text has been accepted.
func (w *Wallet) AreTermsAccepted(body string) (bool, error) {
	var n int64
	if err := w.db.Model(&Term{}).Where("body = ?", body).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcceptTerms records acceptance.  Accepting the same text twice is a
// no-op; different revisions coexist.
func (w *Wallet) AcceptTerms(body string) error {
	accepted, err := w.AreTermsAccepted(body)
	if err != nil || accepted {
		return err
	}
	return w.db.Create(&Term{Body: body, Timestamp: time.Now().Unix()}).Error
}

// logSecret appends one line to the recovery log and forces it to disk.
// The log entry must land before the corresponding database row so that
// replaying the log can always reconstruct the wallet.
func (w *Wallet) logSecret(kind string, sec webcash.SecretWebcash) error {
	if _, err := fmt.Fprintf(w.log, "%d %s %s\n", time.Now().Unix(), kind, sec.String()); err != nil {
		return err
	}
	return w.log.Sync()
}

func (w *Wallet) createSecret(sec webcash.SecretWebcash, mine, sweep bool) (*Secret, error) {
	row := Secret{
		Timestamp: time.Now().Unix(),
		Secret:    sec.Secret,
		Mine:      mine,
		Sweep:     sweep,
	}
	if err := w.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (w *Wallet) createOutput(sec webcash.SecretWebcash, secretID uint) (*Output, error) {
	pub := sec.Public()
	row := Output{
		Timestamp: time.Now().Unix(),
		Hash:      pub.Hash[:],
		SecretID:  &secretID,
		Amount:    int64(sec.Amount),
	}
	if err := w.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert takes custody of a claim code.  The incoming secret is treated as
// compromised: it is atomically replaced on the server by a freshly
// generated change secret of identical amount before the value is
// considered part of the wallet.  Rows written before a failed replacement
// are deliberately left behind; they are discovered stale on the next run
// and can be replayed safely because replacement is idempotent on the
// input hash.
func (w *Wallet) Insert(ctx context.Context, sec webcash.SecretWebcash, mine bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	kind := "receive"
	if mine {
		kind = "mining"
	}
	logFailed := false
	if err := w.logSecret(kind, sec); err != nil {
		// Keep going: the database copy is better than dropping the
		// secret on the floor, but the caller needs to know the backup
		// is incomplete.
		logger.Errorf("failed to write wallet recovery log: %v", err)
		logFailed = true
	}

	secretRow, err := w.createSecret(sec, mine, true)
	if err != nil {
		return err
	}
	outputRow, err := w.createOutput(sec, secretRow.ID)
	if err != nil {
		return err
	}

	change, err := webcash.NewSecret(sec.Amount)
	if err != nil {
		return err
	}
	if err := w.logSecret("change", change); err != nil {
		logger.Errorf("failed to write wallet recovery log: %v", err)
		logFailed = true
	}
	changeRow, err := w.createSecret(change, true, false)
	if err != nil {
		return err
	}

	if err := w.replacer.Replace(ctx, []webcash.SecretWebcash{sec}, []webcash.SecretWebcash{change}); err != nil {
		return fmt.Errorf("sweep replacement failed: %w", err)
	}

	if err := w.db.Model(outputRow).Update("spent", true).Error; err != nil {
		return err
	}
	if _, err := w.createOutput(change, changeRow.ID); err != nil {
		return err
	}

	if logFailed {
		return errors.New("wallet recovery log could not be written")
	}
	return nil
}

// Balance sums the unspent outputs belonging to unswept secrets.
func (w *Wallet) Balance() (webcash.Amount, error) {
	var total int64
	err := w.db.Model(&Output{}).
		Joins("JOIN secrets ON secrets.id = outputs.secret_id").
		Where("outputs.spent = ? AND secrets.sweep = ?", false, false).
		Select("COALESCE(SUM(outputs.amount), 0)").
		Scan(&total).Error
	return webcash.Amount(total), err
}
