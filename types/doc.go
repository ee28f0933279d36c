// Copyright (c) EventFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared vocabulary of the eventflow engine.

types is the lowest-level package in the module and depends on no other
eventflow package, so every other package can import it without cycles.
It defines:

  - Artifact / ArtifactGroup: trackable external entities and the
    project-owned groups they are collected in
  - Event / EventType: time-stamped activity records carrying a
    deterministic SourceID idempotency key
  - AsyncResults: partitioned outcomes of independently resolved
    asynchronous operations
  - Error / ErrorCode: structured errors with a retryable flag and
    cause chaining

Construction helpers (DeriveSourceID, the event builders) live here too so
collectors and recorders agree on a single key derivation.
*/
package types
