package core

import "container/list"

// DeliveryDeduper implements two-tier duplicate suppression for
// inbound delivery identifiers: an in-memory LRU for the hot path and
// a database lookup for identifiers that aged out of the cache. The
// transport promises at-least-once delivery, so the same identifier
// can arrive any number of times; everything past the first accepted
// occurrence is suppressed here, before the handler runs.
type DeliveryDeduper struct {
	lru *deliveryLRU
	db  DBDeduper
}

// DBDeduper is the persistent lookup for delivery identifiers that
// are no longer cached.
type DBDeduper interface {
	IsDuplicate(deliveryID string) (bool, error)
}

func NewDeliveryDeduper(capacity int, db DBDeduper) *DeliveryDeduper {
	return &DeliveryDeduper{lru: newDeliveryLRU(capacity), db: db}
}

// IsDuplicate reports whether the delivery identifier was already
// processed. A database error is treated as "not a duplicate" so a
// storage outage cannot stall ingestion; the settlement log's unique
// constraint is the backstop.
func (d *DeliveryDeduper) IsDuplicate(deliveryID string) bool {
	if d.lru.contains(deliveryID) {
		return true
	}
	if d.db != nil {
		dup, err := d.db.IsDuplicate(deliveryID)
		if err != nil {
			return false
		}
		if dup {
			d.lru.add(deliveryID)
			return true
		}
	}
	return false
}

// MarkProcessed records an identifier after its delivery was applied.
func (d *DeliveryDeduper) MarkProcessed(deliveryID string) {
	d.lru.add(deliveryID)
}

// Warm preloads recently processed identifiers, typically read back
// from the settlement log on startup.
func (d *DeliveryDeduper) Warm(ids []string) {
	for _, id := range ids {
		d.lru.add(id)
	}
}

// Keys returns the cached identifiers, newest first.
func (d *DeliveryDeduper) Keys() []string {
	return d.lru.keys()
}

// deliveryLRU is not thread-safe; only the engine goroutine touches it.
type deliveryLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

func newDeliveryLRU(capacity int) *deliveryLRU {
	return &deliveryLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *deliveryLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

func (l *deliveryLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.cache[key] = l.order.PushFront(key)
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
	}
}

func (l *deliveryLRU) keys() []string {
	out := make([]string, 0, l.order.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}
