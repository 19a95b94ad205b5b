package goals

import (
	"strconv"

	"github.com/google/uuid"
)

// IDSource hands out goal identifiers. The store calls Next under its own
// lock, so implementations need no synchronization of their own.
type IDSource interface {
	Next() string
}

// CounterIDs yields prefix1, prefix2, ...
type CounterIDs struct {
	Prefix string
	n      uint64
}

func NewCounterIDs(prefix string) *CounterIDs {
	return &CounterIDs{Prefix: prefix}
}

func (c *CounterIDs) Next() string {
	c.n++
	return c.Prefix + strconv.FormatUint(c.n, 10)
}

// UUIDIDs yields name-based SHA1 UUIDs over a namespace and a running
// sequence number. The same namespace always yields the same id sequence.
type UUIDIDs struct {
	Namespace uuid.UUID
	n         uint64
}

// NewUUIDIDs uses ns, or a random namespace when ns is uuid.Nil.
func NewUUIDIDs(ns uuid.UUID) *UUIDIDs {
	if ns == uuid.Nil {
		ns = uuid.New()
	}
	return &UUIDIDs{Namespace: ns}
}

func (u *UUIDIDs) Next() string {
	u.n++
	return uuid.NewSHA1(u.Namespace, []byte("goal|"+strconv.FormatUint(u.n, 10))).String()
}
