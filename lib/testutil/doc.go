// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds test helpers shared across BSMD packages.
//
// [RequireReceive] is the one place the test suite touches a real
// wall-clock timeout: it bounds a channel receive so a wedged
// goroutine fails the test instead of hanging it. Everything else in
// the suite runs against an injected clock.
//
// Helpers fail through t.Fatalf rather than returning errors; a test
// cannot recover from its own harness breaking.
//
// This package has no BSMD-internal dependencies.
package testutil
