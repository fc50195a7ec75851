//go:build !nogpu

package main

// Registers the headless backend.
import _ "github.com/gogpu/frameloop/backend/halgpu"
