// Package lock implements integration.RunLocker so that only one
// synchronization runs at a time across processes: an flock(2) file lock for
// single-host deployments, a Redis key for several hosts, and an in-process
// lock when no cross-process guard is configured.
package lock
