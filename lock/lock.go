/*
Package lock provides the per-unit exclusive section used by the billing service.

PURPOSE:
  Bill generation, bill deletion and payment allocation for one unit must not
  interleave: each reads the advance balance or bill totals, computes, then
  writes. A Locker serializes them by key.

IMPLEMENTATIONS:
  - Memory: in-process keyed mutex for single-instance deployments and tests
  - Redis:  SET NX with a token and TTL, released by compare-and-delete,
            for deployments running several API instances

USAGE:
  unlock, err := locker.Lock(ctx, "unit:"+unitID)
  if err != nil {
      return err
  }
  defer unlock()
*/
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when a lock could not be taken before the deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker grants exclusive sections by key.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}
