// Copyright (c) EventFlow Authors.
// Licensed under the MIT License.

/*
Package recorder turns individual event submissions into batched durable
writes while keeping per-event outcomes addressable.

# Overview

Collectors produce events one at a time but stores commit them efficiently
in batches. EventRecorder sits between the two: Record accepts a validated
event, enqueues it, and immediately returns a Handle. Background workers
aggregate queued events into batches bounded by size and flush interval and
commit them through an EventWriter. Each handle later resolves to the
committed sourceId or to a structured failure.

# Core types

  - EventWriter: batch commit collaborator. A batch-level error triggers
    per-event fallback writes so one bad row cannot fail its siblings.
  - EventRecorder: queue, worker pool, and handle bookkeeping. Wait resolves
    a chosen set of handles within a millisecond budget; WaitAll resolves
    everything not yet waited on.
  - Handle: single-resolution future. Waiting is idempotent; a handle that
    misses the wait deadline reports WaitTimeout, which means unknown, not
    failed: the write may still land, and resubmission is safe because
    sourceIds dedupe at the store.
  - GroupRecorder: indexes handles by artifact identity and event type so a
    scheduler can wait on exactly the slice of work it cares about. A key
    with no recorded handles resolves immediately with empty results.

# Usage

	rec := recorder.NewEventRecorder(recorder.DefaultConfig(), writer, logger)
	defer rec.Close()

	group := recorder.NewGroupRecorder(rec, 0, logger)
	group.Record(ctx, &event)
	results := group.WaitArtifact(ctx, event.To)
*/
package recorder
