// Package metrics holds the storage engine counters. They are recorded on the
// global OpenTelemetry meter, which is a no-op until the embedding process
// installs a provider.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/llifei/db2023"

type Storage struct {
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	WALAppends     metric.Int64Counter
	TxnBegun       metric.Int64Counter
	TxnCommitted   metric.Int64Counter
	TxnAborted     metric.Int64Counter
	LockDeadlocks  metric.Int64Counter
	RecoveryRedone metric.Int64Counter
	RecoveryUndone metric.Int64Counter
}

func New(meter metric.Meter) (*Storage, error) {
	s := &Storage{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&s.CacheHits, "cache.hits", "cache lookups served from memory"},
		{&s.CacheMisses, "cache.misses", "cache lookups that ran the loader"},
		{&s.WALAppends, "wal.appends", "records appended to the write-ahead log"},
		{&s.TxnBegun, "txn.begun", "transactions started"},
		{&s.TxnCommitted, "txn.committed", "transactions committed"},
		{&s.TxnAborted, "txn.aborted", "transactions aborted, explicitly or automatically"},
		{&s.LockDeadlocks, "lock.deadlocks", "lock requests rejected by deadlock detection"},
		{&s.RecoveryRedone, "recovery.redone", "log records re-applied during recovery"},
		{&s.RecoveryUndone, "recovery.undone", "log records rolled back during recovery"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}

		*c.dst = counter
	}

	return s, nil
}

var (
	once    sync.Once
	storage *Storage
)

// Get returns the process-wide counters bound to the global meter provider.
func Get() *Storage {
	once.Do(func() {
		s, err := New(otel.Meter(meterName))
		if err != nil {
			s, _ = New(noop.NewMeterProvider().Meter(meterName))
		}

		storage = s
	})

	return storage
}

func Inc(c metric.Int64Counter) {
	c.Add(context.Background(), 1)
}
