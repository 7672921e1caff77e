package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist in the store.
var ErrNotFound = errors.New("kv: key not found")

type opKind int

const (
	opSet opKind = iota
	opSetTTL
	opDelete
	opIncr
)

// Op is a single operation inside an atomic multi-key transaction.
type Op struct {
	kind  opKind
	key   string
	value []byte
	ttl   time.Duration
}

// SetOp writes a value without expiry.
func SetOp(key string, value []byte) Op {
	return Op{kind: opSet, key: key, value: value}
}

// SetTTLOp writes a value with an expiry.
func SetTTLOp(key string, value []byte, ttl time.Duration) Op {
	return Op{kind: opSetTTL, key: key, value: value, ttl: ttl}
}

// DeleteOp removes a key.
func DeleteOp(key string) Op {
	return Op{kind: opDelete, key: key}
}

// IncrOp increments an integer counter key by one.
func IncrOp(key string) Op {
	return Op{kind: opIncr, key: key}
}

// Store is the key-value store contract the application depends on.
// Txn applies all operations together: readers never observe a partial
// write from a single transaction.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Txn(ctx context.Context, ops []Op) error
	Close() error
}
