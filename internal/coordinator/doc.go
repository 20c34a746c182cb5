// Package coordinator implements the claim protocol on top of the store's
// conditional accept: claim, renew, complete and release are each one
// observed-state proposal, retried with exponential backoff when another
// worker's proposal lands first. At most one worker holds an item at a time;
// the store rejects every stale proposal, so two workers can never both
// believe they won.
package coordinator
