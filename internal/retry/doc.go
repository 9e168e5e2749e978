// Package retry classifies failures and retries the transient ones.
//
// # Fault Kinds
//
// Every error maps to one [Kind]. Transport code raises [Fault] values through [FromStatus], [Network] and
// [Permanent]; [KindOf] also recognises bare connection resets and timeouts that were not wrapped.
//
//   - [TransientNetwork] and [TransientServer] are retried
//   - [PermanentClient] and [PermanentOther] fail immediately
//
// # Backoff
//
// [Controller.Run] counts consecutive transient faults. After fault n it sleeps a uniform random
// duration in [0, 2^n) units and tries again. The count resets only when a new Run starts, so a
// retried chunk upload keeps its own budget independent of earlier chunks.
//
// The default retry limit is [Unbounded]; [WithMaxRetries] bounds it.
package retry
