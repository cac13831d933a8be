// Package meta attaches a mutable, request-scoped bag of values to a context so that
// middleware further down the chain can enrich what the outer logger prints.
package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type metadata struct {
	carrier sync.Map
}

type contextKey struct{}

// Begin returns parent unchanged if it already carries metadata, otherwise a child that does.
// Call it as close to the root context as possible.
func Begin(parent context.Context) context.Context {
	if _, ok := parent.Value(contextKey{}).(*metadata); ok {
		return parent
	}
	return context.WithValue(parent, contextKey{}, &metadata{})
}

func metadataFrom(parent context.Context) *metadata {
	m, ok := parent.Value(contextKey{}).(*metadata)
	if !ok {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
		return nil
	}
	return m
}

// WithValue stores key/val in the metadata of parent. No-op without Begin.
func WithValue(parent context.Context, key, val interface{}) {
	if m := metadataFrom(parent); m != nil {
		m.carrier.Store(key, val)
	}
}

// Value reads key from the metadata of parent.
func Value(parent context.Context, key interface{}) interface{} {
	m := metadataFrom(parent)
	if m == nil {
		return nil
	}
	v, _ := m.carrier.Load(key)
	return v
}
