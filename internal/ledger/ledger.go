package ledger

import (
	"math"
	"sync"
	"time"

	. "gbce/internal/common"

	"github.com/tidwall/btree"
)

// Orders are kept sorted by timestamp. Equal timestamps are kept in
// insertion order through the ledger sequence number.
type Orders = btree.BTreeG[Order]

func byTime(a, b Order) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.Seq < b.Seq
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Ledger is the append-only order history of a single instrument.
//
// Appends insert at the sorted position, so range queries never depend on
// callers recording trades chronologically. Queries may run concurrently
// with each other; appends are exclusive.
type Ledger struct {
	mu     sync.RWMutex
	orders *Orders
	seq    uint64
}

func New() *Ledger {
	return &Ledger{
		// Locking is handled by the ledger itself.
		orders: btree.NewBTreeGOptions(byTime, btree.Options{NoLocks: true}),
	}
}

// Append validates and stores a new order. The order is either fully
// recorded or not recorded at all.
func (l *Ledger) Append(quantity uint64, side Side, price float64, timestamp time.Time) (Order, error) {
	order, err := NewOrder(quantity, side, price, timestamp)
	if err != nil {
		return Order{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	order.Seq = l.seq
	l.orders.Set(order)
	return order, nil
}

// Len returns the number of recorded orders.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orders.Len()
}

// Last returns the tail of the ledger, i.e. the order with the latest
// timestamp (the latest inserted one among equal timestamps).
func (l *Ledger) Last() (Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	order, ok := l.orders.Max()
	if !ok {
		return Order{}, ErrEmptyLedger
	}
	return order, nil
}

// Orders returns a snapshot of the whole ledger in timestamp order.
func (l *Ledger) Orders() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orders.Items()
}

// Range returns the orders whose timestamps fall inside the window
// described by the bounds that are present:
//
//   - neither: every order.
//   - only to: timestamp <= to.
//   - only from: timestamp > from.
//   - both: from <= timestamp < to.
//
// Each bound costs one O(log n) tree descent; materialising k results
// costs O(k).
func (l *Ledger) Range(from, to *time.Time) []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch {
	case from == nil && to == nil:
		return l.orders.Items()
	case from == nil:
		return l.collect(nil, func(o Order) bool { return !o.Timestamp.After(*to) })
	case to == nil:
		// Sorts after every order stamped exactly at from.
		pivot := Order{Timestamp: *from, Seq: math.MaxUint64}
		return l.collect(&pivot, func(Order) bool { return true })
	default:
		if !from.Before(*to) {
			return []Order{}
		}
		// Sorts before every order stamped exactly at from.
		pivot := Order{Timestamp: *from}
		return l.collect(&pivot, func(o Order) bool { return o.Timestamp.Before(*to) })
	}
}

// collect walks the tree from pivot (or the start) while keep holds.
func (l *Ledger) collect(pivot *Order, keep func(Order) bool) []Order {
	orders := []Order{}
	iter := func(o Order) bool {
		if !keep(o) {
			return false
		}
		orders = append(orders, o)
		return true
	}

	if pivot == nil {
		l.orders.Scan(iter)
	} else {
		l.orders.Ascend(*pivot, iter)
	}
	return orders
}

// Since returns every order strictly after from.
func (l *Ledger) Since(from time.Time) []Order {
	return l.Range(&from, nil)
}

// Until returns every order at or before to.
func (l *Ledger) Until(to time.Time) []Order {
	return l.Range(nil, &to)
}

// Between returns every order in [from, to).
func (l *Ledger) Between(from, to time.Time) []Order {
	return l.Range(&from, &to)
}
