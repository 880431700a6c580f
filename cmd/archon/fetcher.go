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


package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/leonj1/Archon-sub001/ingestion"
)

// textExtensions are the file types the filesystem fetcher ingests.
var textExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".rst":  true,
	".html": true,
}

// filesystemFetcher serves file:// origins. A directory origin walks the tree
// up to maxDepth levels below it; a file origin yields that single document.
type filesystemFetcher struct{}

func (filesystemFetcher) Fetch(ctx context.Context, origin string, maxDepth int) ([]ingestion.FetchedDocument, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "file" {
		return nil, fmt.Errorf("unsupported origin scheme %q: only file:// origins are supported", parsed.Scheme)
	}
	root := parsed.Path

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return readDocument(root)
	}

	var docs []ingestion.FetchedDocument
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		depth := strings.Count(rel, string(filepath.Separator))

		if entry.IsDir() {
			if maxDepth >= 0 && depth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		fileDocs, readErr := readDocument(path)
		if readErr != nil {
			return readErr
		}
		docs = append(docs, fileDocs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func readDocument(path string) ([]ingestion.FetchedDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return []ingestion.FetchedDocument{{
		URL:     "file://" + filepath.ToSlash(path),
		Title:   title,
		Content: string(content),
		Metadata: map[string]string{
			"path": path,
		},
	}}, nil
}

// originToURL accepts a file:// URL or a bare filesystem path and returns a
// canonical file:// origin URL.
func originToURL(origin string) (string, error) {
	if strings.HasPrefix(origin, "file://") {
		return origin, nil
	}
	abs, err := filepath.Abs(origin)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
