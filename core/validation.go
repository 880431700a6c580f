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


package core

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSource validates a Source according to domain rules.
//
// Validation rules:
//   - OriginURL must be well-formed (see ValidateOriginURL)
//   - Status must be a known lifecycle state
//
// NOT validated (populated by the pipeline):
//   - Counts and Generation (zero until a run commits)
//   - StatusDetail (empty is valid)
func ValidateSource(source *Source) error {
	if source == nil {
		return fmt.Errorf("%w: source is nil", ErrInvalidSource)
	}

	if err := ValidateOriginURL(source.OriginURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	if err := ValidateStatus(source.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - URL must not be empty
//   - Content must not be empty
//
// NOT validated:
//   - Title and Metadata (optional)
//   - SourceId (0 only occurs before the document is bound to a source)
func ValidateDocument(document *Document) error {
	if document == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if document.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentURL)
	}

	if document.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	return nil
}

// ValidateStatus validates that a SourceStatus has a known value.
func ValidateStatus(status SourceStatus) error {
	switch status {
	case StatusPending, StatusCrawling, StatusProcessing, StatusStoring, StatusCompleted, StatusFailed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateOriginURL validates an origin URL. File paths and URLs without a
// scheme are rejected; the fetcher decides what schemes it supports.
func ValidateOriginURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidOriginURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOriginURL, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: missing scheme in %q", ErrInvalidOriginURL, raw)
	}
	return nil
}
