// Package governor throttles and sequences outbound work against a single
// external site.
//
// # Overview
//
// A Scheduler accepts tasks via Schedule() and decides when each may start,
// how many may run concurrently, and how fast failed tasks are retried. It
// enforces three independent constraints:
//
//   - MaxConcurrent: an upper bound on simultaneously running jobs.
//   - MinTime: a minimum spacing between two job starts.
//   - Reservoir: an optional token budget replenished on a timer.
//
// Jobs are admitted in FIFO order among those eligible at a given instant. A
// job that fails is re-queued after an exponential backoff delay; it re-enters
// at the back of the queue, behind jobs enqueued while it was waiting out its
// delay. Starvation of a frequently retried job under heavy load is an
// accepted trade-off.
//
// # Retry and backoff
//
// Failed tasks are retried up to MaxRetries times; the task is invoked at most
// 1+MaxRetries times in total. The backoff delay doubles per attempt, with
// status-aware floors when the failure carries an HTTP status (see
// StatusError): 429 waits at least 5s, 503 at least 3s. Terminal failures
// settle the job's Handle with the last observed error, unwrapped.
//
// # Lifecycle
//
// Each Scheduler owns its state exclusively; instances are independent and may
// run concurrently within one process. The scheduler never times out or
// cancels a dispatched task; callers impose their own timeout inside the task
// body. Close() stops admission and settles queued jobs with ErrClosed;
// already-running tasks finish normally.
package governor
