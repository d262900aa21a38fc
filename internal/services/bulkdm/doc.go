// Package bulkdm implements the rate-limited bulk direct-message pipeline.
//
// A bulk send is represented as a Job. At most one Job runs at a time: the
// Service owns the in-flight flag and rejects concurrent starts instead of
// queueing them. The accepted Job runs as a single background goroutine that
// resolves recipients, slices them into batches, and drains them strictly
// sequentially with a configurable per-message delay and an inter-batch rest
// period.
//
// Delivery semantics
//
// Sends are best-effort per recipient: a failed DM-channel creation or
// message post increments the failed counter and the loop moves on. Only a
// resolution failure or an unexpected error aborts the Job. Every state
// change is published to the event bus as a progress snapshot; subscribers
// joining mid-job see only what happens after they join.
//
// Job history is kept in memory, bounded by count and TTL.
package bulkdm
