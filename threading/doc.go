// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package threading provides the synchronization primitives used by the
// frame loop: a shared cancellation Status, a reusable rendezvous Barrier,
// a FrameGate that parks workers until the next frame epoch is published,
// and a fixed set of Workers with an explicit join-on-stop lifecycle.
//
// Every blocking call in this package returns promptly once its Status is
// cancelled, so a shutdown path never depends on another goroutine making
// progress.
package threading
