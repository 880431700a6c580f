// Copyright 2025 Poiesic Systems
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


// Package ingestion orchestrates the document ingestion pipeline: fetching,
// chunking, batch embedding and vector index synchronization, driven by a
// per-source lifecycle state machine.
//
// Each ingestion run executes as an independent cancellable task on a worker
// pool. Stages within a run are sequential; embedding batches inside the
// processing stage run concurrently up to a bound. At most one run is active
// per source at any time: a second BeginIngest for the same source is rejected
// with ErrRunActive, never queued.
//
// The state machine guarantees exactly one terminal status write per run.
// Every exit path, normal or abnormal, resolves the source to completed or
// failed; a run can never end leaving its source in a non-terminal status.
package ingestion
