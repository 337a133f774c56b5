// Package runtime assembles the storage, transaction, and notification
// components into a single-node engine and hands out per-connection
// handles.
package runtime
