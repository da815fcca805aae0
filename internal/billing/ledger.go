package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrEventInFlight is returned when another delivery of the same event is
// still being processed. The webhook answers non-2xx so the provider retries.
var ErrEventInFlight = errors.New("billing event is in-flight")

const (
	defaultLedgerLockTTL = 10 * time.Minute

	// Stripe retries failed deliveries for up to three days.
	defaultLedgerRetention = 72 * time.Hour
)

// EventLedger records which provider events have been applied.
//
// Do runs fn at most once to completion per event ID. already is true when a
// previous delivery completed. A failing fn is not recorded, so a redelivery
// runs it again.
type EventLedger interface {
	Do(eventID string, fn func() error) (already bool, err error)
}

type ledgerState int

const (
	ledgerInFlight ledgerState = iota + 1
	ledgerDone
)

// MemoryLedger is an in-process EventLedger. Completed entries expire after
// the retention window.
type MemoryLedger struct {
	entries   *cache.Cache
	lockTTL   time.Duration
	retention time.Duration
}

// NewMemoryLedger creates a MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries:   cache.New(defaultLedgerRetention, time.Hour),
		lockTTL:   defaultLedgerLockTTL,
		retention: defaultLedgerRetention,
	}
}

func (l *MemoryLedger) Do(eventID string, fn func() error) (bool, error) {
	if err := validateLedgerArgs(eventID, fn); err != nil {
		return false, err
	}

	// Add is atomic: exactly one delivery claims the event.
	if err := l.entries.Add(eventID, ledgerInFlight, l.lockTTL); err != nil {
		if state, ok := l.entries.Get(eventID); ok && state == ledgerDone {
			return true, nil
		}
		return false, ErrEventInFlight
	}

	if err := fn(); err != nil {
		l.entries.Delete(eventID)
		return false, err
	}
	l.entries.Set(eventID, ledgerDone, l.retention)
	return false, nil
}

// FileLedger is a durable EventLedger. Each event owns a pair of marker
// files in dir, named by a keyed hash of its ID: "<hash>.claim" while a
// delivery runs and "<hash>.applied" once one has completed. A claim older
// than the claim TTL belongs to a crashed delivery and may be expired.
type FileLedger struct {
	markers  markerDir
	claimTTL time.Duration
	clock    func() time.Time
}

// NewFileLedger creates a FileLedger rooted at dir.
func NewFileLedger(dir string) *FileLedger {
	return &FileLedger{
		markers:  markerDir{root: dir, key: []byte("quickfaqs-stripe-webhook-v1")},
		claimTTL: defaultLedgerLockTTL,
		clock:    time.Now,
	}
}

func (l *FileLedger) Do(eventID string, fn func() error) (bool, error) {
	if err := validateLedgerArgs(eventID, fn); err != nil {
		return false, err
	}

	name := l.markers.name(eventID)
	if l.markers.applied(name) {
		return true, nil
	}
	if err := l.claim(name); err != nil {
		if errors.Is(err, ErrEventInFlight) && l.markers.applied(name) {
			return true, nil
		}
		return false, err
	}
	defer l.markers.release(name)

	// Another delivery may have committed between the check and the claim.
	if l.markers.applied(name) {
		return true, nil
	}
	if err := fn(); err != nil {
		return false, err
	}
	if err := l.markers.commit(name, l.clock().UTC()); err != nil {
		return false, err
	}
	return false, nil
}

func (l *FileLedger) claim(name string) error {
	for attempt := 0; attempt < 2; attempt++ {
		err := l.markers.create(name, l.clock().UTC())
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		if !l.markers.expire(name, l.clock().Add(-l.claimTTL)) {
			return ErrEventInFlight
		}
	}
	return ErrEventInFlight
}

type ledgerMarker struct {
	At time.Time `json:"at"`
}

// markerDir owns the on-disk layout of a FileLedger. Event IDs are never used
// as paths.
type markerDir struct {
	root string
	key  []byte
}

func (m markerDir) name(eventID string) string {
	mac := hmac.New(sha256.New, m.key)
	_, _ = mac.Write([]byte(eventID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m markerDir) claimPath(name string) string {
	return filepath.Join(m.root, name+".claim")
}

func (m markerDir) appliedPath(name string) string {
	return filepath.Join(m.root, name+".applied")
}

func (m markerDir) applied(name string) bool {
	_, err := os.Stat(m.appliedPath(name))
	return err == nil
}

// create writes a fresh claim. It fails with os.ErrExist when one is held.
func (m markerDir) create(name string, at time.Time) error {
	if err := os.MkdirAll(m.root, 0o700); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(m.claimPath(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("claim ledger entry: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ledgerMarker{At: at})
}

// expire removes a claim made before cutoff and reports whether it did. The
// claim is moved aside first so only one caller can win it, and restored if
// a fresh claim was taken by mistake.
func (m markerDir) expire(name string, cutoff time.Time) bool {
	claim := m.claimPath(name)
	if at, ok := m.claimedAt(claim); !ok || at.After(cutoff) {
		return false
	}

	aside := fmt.Sprintf("%s.expired-%d-%d", claim, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(claim, aside); err != nil {
		return false
	}
	defer os.Remove(aside)

	if at, ok := m.claimedAt(aside); ok && at.After(cutoff) {
		_ = os.Link(aside, claim)
		return false
	}
	return true
}

// claimedAt reads a claim's timestamp, falling back to the file's mtime when
// the writer crashed before recording one.
func (m markerDir) claimedAt(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	var marker ledgerMarker
	if json.Unmarshal(data, &marker) == nil && !marker.At.IsZero() {
		return marker.At, true
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func (m markerDir) commit(name string, at time.Time) error {
	data, err := json.Marshal(ledgerMarker{At: at})
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	dst := m.appliedPath(name)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write ledger entry: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit ledger entry: %w", err)
	}
	return nil
}

func (m markerDir) release(name string) {
	_ = os.Remove(m.claimPath(name))
}

func validateLedgerArgs(eventID string, fn func() error) error {
	if strings.TrimSpace(eventID) == "" {
		return errors.New("event id is required")
	}
	if fn == nil {
		return errors.New("handler is required")
	}
	return nil
}
