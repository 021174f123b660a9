// Package store implements the versioned response store.
//
// Responses are kept as opaque byte snapshots grouped into namespaces.
// A namespace is one generation of the store (e.g. "myapp-1.4.2"); version
// upgrades open a fresh namespace and delete the old ones wholesale.
package store

// Provider is an interface for a namespaced store backend.
// It stores and retrieves []byte values, which represent HTTP responses.
// Operating on whole namespaces is very important in order for stale
// generations to be evictable in one sweep.
//
// Implementations must be thread-safe!
type Provider interface {
	// Open returns a handle scoped to the given namespace,
	// creating the namespace if it does not exist yet.
	// Opening the same namespace twice is not an error.
	Open(namespace string) (Handle, error)
	// Namespaces returns the names of all namespaces in the store.
	Namespaces() ([]string, error)
	// Delete removes a namespace and every entry in it.
	// It returns whether the namespace existed.
	// Deleting an absent namespace is not an error.
	Delete(namespace string) (bool, error)
}

// Handle is a view of a single namespace.
// Entries are immutable snapshots: a Put replaces the whole entry,
// concurrent puts to the same identity race and the last write wins.
type Handle interface {
	// Put stores the snapshot under the given request identity,
	// overwriting any previous entry.
	Put(identity string, snapshot []byte) error
	// Match returns the stored snapshot for the given identity, if any.
	// A miss is reported as (nil, false, nil) - absence is not an error.
	Match(identity string) ([]byte, bool, error)
	// Name returns the namespace this handle is scoped to.
	Name() string
}
