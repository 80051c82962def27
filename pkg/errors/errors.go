// Copyright 2026 The OpenAGX Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors holds the standardized error definitions for the driver.
//
// Errors are errno-backed values constructed once at package level and
// compared by identity, so hot paths can classify failures without
// allocation or string matching.
package errors

import (
	"golang.org/x/sys/unix"
)

// Error is a driver error carrying the errno it maps to at the uapi
// boundary and a descriptive message.
type Error struct {
	errno   unix.Errno
	message string
}

// New creates a new *Error.
func New(errno unix.Errno, message string) *Error {
	return &Error{
		errno:   errno,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the underlying errno value.
func (e *Error) Errno() unix.Errno { return e.errno }

// Errors used by the submission core. ERESTARTSYS is what a blocked
// ring-full wait returns when it is interrupted; callers are expected to
// retry or abandon the submission.
var (
	ENOMEM      = New(unix.ENOMEM, "out of memory")
	EINVAL      = New(unix.EINVAL, "invalid argument")
	EIO         = New(unix.EIO, "I/O error")
	ENODATA     = New(unix.ENODATA, "no data available")
	ECANCELED   = New(unix.ECANCELED, "operation canceled")
	ETIMEDOUT   = New(unix.ETIMEDOUT, "connection timed out")
	ERESTARTSYS = New(unix.ERESTART, "interrupted, restart")
)
