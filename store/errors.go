// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"errors"

	"github.com/erigontech/caplin-store/hdiff"
)

// Missing-record errors. Some are recoverable by callers (BlockNotFound
// during oldest-block iteration when the oldest-block slot is genesis);
// most are fatal for the operation in progress.
var (
	ErrMissingSplitState       = errors.New("store: missing split state")
	ErrMissingEpochBoundary    = errors.New("store: missing epoch boundary state")
	ErrMissingHDiff            = errors.New("store: missing hdiff")
	ErrMissingSnapshot         = errors.New("store: missing snapshot")
	ErrBlockNotFound           = errors.New("store: block not found")
	ErrNoBaseStateFound        = errors.New("store: no base state found")
)

// Concurrency errors indicate a compare-and-set guard failed; callers
// retry the whole operation.
var (
	ErrAnchorInfoConcurrentMutation = errors.New("store: anchor info concurrently mutated")
	ErrBlobInfoConcurrentMutation   = errors.New("store: blob info concurrently mutated")
	ErrSplitPointModified           = errors.New("store: split point modified during migration")
)

// Validation errors are fatal for the call that triggered them.
var (
	ErrFreezeSlotUnaligned        = errors.New("store: freeze slot not aligned to an epoch boundary")
	ErrFreezeSlotError            = errors.New("store: freeze slot precedes current split")
	ErrSlotIsBeforeSplit          = errors.New("store: slot is before split")
	ErrInvalidHierarchy           = errors.New("store: invalid hierarchy config")
	ErrBlobsPreviouslyInDefaultDB = errors.New("store: blobs were previously stored in the default database")

	// ErrXorDeletionsNotSupported re-exports the diff engine's sentinel so
	// callers comparing against the store's taxonomy match errors that
	// originate inside Compute.
	ErrXorDeletionsNotSupported = hdiff.ErrXorDeletionsNotSupported
)

// ErrUnsupportedSchemaVersion is fatal at open; there is no runtime
// recovery path.
var ErrUnsupportedSchemaVersion = errors.New("store: unsupported schema version")

// ErrRollback signals that a best-effort reversal of a failed multi-DB
// write could not be fully carried out; callers must escalate.
var ErrRollback = errors.New("store: rollback incomplete")
