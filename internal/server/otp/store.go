package otp

import (
	"context"
	"time"
)

// Result is the outcome of presenting a candidate code to a Store.
type Result int

const (
	// Absent means no live code exists: never issued, or expired.
	Absent Result = iota
	// Mismatch means a live code exists but differs. The code stays live.
	Mismatch
	// Match means the candidate equalled the live code, which is now consumed.
	Match
)

func (r Result) String() string {
	switch r {
	case Absent:
		return "absent"
	case Mismatch:
		return "mismatch"
	case Match:
		return "match"
	default:
		return "unknown"
	}
}

// Store holds at most one live code per owner key.
//
// Put overwrites any existing code for owner and expires the new one after
// ttl. Take compares candidate against the live code and deletes it on an
// exact match; the read, comparison and delete form one atomic unit with
// respect to Put and to expiry.
type Store interface {
	Put(ctx context.Context, owner, code string, ttl time.Duration) error
	Take(ctx context.Context, owner, candidate string) (Result, error)
}
