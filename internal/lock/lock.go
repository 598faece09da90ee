// Package lock provides per-key critical sections for checkout and capture.
package lock

import (
	"context"
	"errors"
	"strconv"
)

// ErrTimeout is returned when the lock could not be acquired within the wait time.
var ErrTimeout = errors.New("lock wait timed out")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func(ctx context.Context) error

// Locker serializes work on a key. Callers queue behind the current holder until it
// releases or the locker's wait timeout elapses.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// CartKey is the lock key guarding checkout of a cart.
func CartKey(cartID string) string {
	return "checkout:cart:" + cartID
}

// OrderKey is the lock key guarding payment capture of an order.
func OrderKey(orderID int64) string {
	return "capture:order:" + strconv.FormatInt(orderID, 10)
}
