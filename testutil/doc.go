// Copyright 2026 EventFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil provides shared helpers for eventflow tests.

# Overview

testutil centralizes the small pieces of test infrastructure every package
needs so they are written once: bounded test contexts, polling assertions,
and JSON conveniences. Tests should prefer these helpers over re-implementing
similar scaffolding per package.

# Core helpers

  - Context helpers: TestContext / TestContextWithTimeout / CancelledContext,
    each registering Cleanup so no context leaks past the test
  - Async assertions: AssertEventuallyTrue polls a condition until a deadline
  - Waiting: WaitFor / WaitForChannel for goroutine and channel coordination
  - Data helpers: MustJSON / MustParseJSON for terse fixture construction

# Subpackages

  - testutil/fixtures: canonical test data (repository and user artifacts,
    groups, and pre-built starred/forked/aggregate events)
  - testutil/mocks: mock collaborators with builder-style configuration and
    error injection, currently the event writer mock

# Usage

	ctx := testutil.TestContext(t)
	w := mocks.NewEventWriter().WithFailSourceID(badID)
	results, err := w.WriteEvents(ctx, events)
*/
package testutil
