// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the runtime's namespaced key-value port.
// Namespaces isolate the core runtime, plugins and long-term memories from
// each other; a plugin only ever sees a handle scoped to its own namespace.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("storage: key not found")

// ErrPrefixRequired is returned by Keys and Query when the prefix is
// empty. Unbounded scans are not served.
var ErrPrefixRequired = errors.New("storage: a non-empty prefix is required")

// Query orderings.
const (
	OrderByKey       = "key"
	OrderByUpdatedAt = "updated_at"
)

// QueryOptions page and order a Query. The zero value means every match,
// ascending by key.
type QueryOptions struct {
	// OrderBy is OrderByKey (the default) or OrderByUpdatedAt.
	OrderBy    string
	Descending bool

	// Limit caps the result count; zero means no cap. Offset skips that
	// many rows before the first returned one.
	Limit  int
	Offset int
}

// Item is one key/value pair returned by Query, in query order.
type Item struct {
	Key   string
	Value []byte
}

// Store is the namespaced KV port.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set writes key to value, replacing any previous value.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Keys lists keys in the namespace with the given prefix, sorted.
	// The prefix must be non-empty.
	Keys(ctx context.Context, namespace, prefix string) ([]string, error)

	// Query returns the key/value pairs whose keys carry the prefix,
	// paged and ordered per opts. The prefix must be non-empty.
	Query(ctx context.Context, namespace, prefix string, opts QueryOptions) ([]Item, error)

	// Close releases the underlying resources.
	Close() error
}

// Namespaced wraps a Store with a fixed namespace, the handle plugins get.
type Namespaced struct {
	store     Store
	namespace string
}

// InNamespace scopes store to one namespace.
func InNamespace(store Store, namespace string) *Namespaced {
	return &Namespaced{store: store, namespace: namespace}
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.namespace, key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.namespace, key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.namespace, key)
}

func (n *Namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	return n.store.Keys(ctx, n.namespace, prefix)
}

func (n *Namespaced) Query(ctx context.Context, prefix string, opts QueryOptions) ([]Item, error) {
	return n.store.Query(ctx, n.namespace, prefix, opts)
}
