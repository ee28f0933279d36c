// Copyright (c) EventFlow Authors.
// Licensed under the MIT License.

/*
Package main is the eventflow command line entry point.

# Overview

cmd/eventflow drives incremental collection of GitHub activity events
(stars, forks, watcher counts) into the event store. The binary loads a
YAML configuration with environment overrides, logs through zap, and
exposes the schema migration tooling alongside the collection run.

# Commands

  - collect: run every metric family over the requested repositories
    and time range, committing artifacts in fixed-size batches
  - migrate: versioned schema migrations (up, down, status, goto,
    force, reset) for postgres, mysql, and sqlite
  - health: connectivity probe for the configured database and, when
    enabled, the Redis range cache
  - version: build information injected through ldflags

# Behavior

  - Repositories come from positional owner/name arguments and an
    optional -artifacts file, one locator per line
  - -resume skips family/group pairs a prior completed run already
    covered for the requested range
  - Per-artifact failures never abort the run; they are reported in the
    final summary and reflected in the exit code
*/
package main
