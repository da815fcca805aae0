package billing

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerImplementations(t *testing.T) map[string]EventLedger {
	return map[string]EventLedger{
		"memory": NewMemoryLedger(),
		"file":   NewFileLedger(t.TempDir()),
	}
}

func TestLedgerRecordsCompletion(t *testing.T) {
	for name, ledger := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			calls := 0
			fn := func() error { calls++; return nil }

			already, err := ledger.Do("evt_1", fn)
			require.NoError(t, err)
			assert.False(t, already)

			already, err = ledger.Do("evt_1", fn)
			require.NoError(t, err)
			assert.True(t, already)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestLedgerDoesNotRecordFailures(t *testing.T) {
	for name, ledger := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("boom")
			_, err := ledger.Do("evt_fail", func() error { return boom })
			require.ErrorIs(t, err, boom)

			ran := false
			already, err := ledger.Do("evt_fail", func() error { ran = true; return nil })
			require.NoError(t, err)
			assert.False(t, already)
			assert.True(t, ran)
		})
	}
}

func TestLedgerRejectsConcurrentDelivery(t *testing.T) {
	for name, ledger := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			started := make(chan struct{})
			release := make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := ledger.Do("evt_busy", func() error {
					close(started)
					<-release
					return nil
				})
				done <- err
			}()
			<-started

			_, err := ledger.Do("evt_busy", func() error { return nil })
			assert.ErrorIs(t, err, ErrEventInFlight)

			close(release)
			require.NoError(t, <-done)

			already, err := ledger.Do("evt_busy", func() error { return nil })
			require.NoError(t, err)
			assert.True(t, already)
		})
	}
}

func TestLedgerRunsOnceUnderContention(t *testing.T) {
	for name, ledger := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			var runs atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = ledger.Do("evt_race", func() error {
						runs.Add(1)
						time.Sleep(5 * time.Millisecond)
						return nil
					})
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), runs.Load())
		})
	}
}

func TestLedgerValidatesArguments(t *testing.T) {
	for name, ledger := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.Do("  ", func() error { return nil })
			assert.Error(t, err)
			_, err = ledger.Do("evt_1", nil)
			assert.Error(t, err)
		})
	}
}

func TestFileLedgerExpiresAbandonedClaim(t *testing.T) {
	ledger := NewFileLedger(t.TempDir())
	name := ledger.markers.name("evt_stale")
	require.NoError(t, ledger.markers.create(name, time.Now().UTC()))

	_, err := ledger.Do("evt_stale", func() error { return nil })
	require.ErrorIs(t, err, ErrEventInFlight)

	ledger.clock = func() time.Time { return time.Now().Add(ledger.claimTTL + time.Minute) }
	ran := false
	already, err := ledger.Do("evt_stale", func() error { ran = true; return nil })
	require.NoError(t, err)
	assert.False(t, already)
	assert.True(t, ran)
	_, statErr := os.Stat(ledger.markers.claimPath(name))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileLedgerTreatsTruncatedClaimByAge(t *testing.T) {
	ledger := NewFileLedger(t.TempDir())
	name := ledger.markers.name("evt_truncated")
	require.NoError(t, os.MkdirAll(ledger.markers.root, 0o700))
	require.NoError(t, os.WriteFile(ledger.markers.claimPath(name), nil, 0o600))

	_, err := ledger.Do("evt_truncated", func() error { return nil })
	require.ErrorIs(t, err, ErrEventInFlight)

	ledger.clock = func() time.Time { return time.Now().Add(ledger.claimTTL + time.Minute) }
	already, err := ledger.Do("evt_truncated", func() error { return nil })
	require.NoError(t, err)
	assert.False(t, already)
}

func TestFileLedgerSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileLedger(dir).Do("evt_durable", func() error { return nil })
	require.NoError(t, err)

	already, err := NewFileLedger(dir).Do("evt_durable", func() error {
		t.Fatal("completed event must not run again")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, already)
}

func TestFileLedgerDoesNotUseEventIDAsPath(t *testing.T) {
	ledger := NewFileLedger(t.TempDir())
	name := ledger.markers.name("../../etc/passwd")
	assert.Len(t, name, 64)
	assert.NotContains(t, name, "/")
}
