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


package archon

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leonj1/Archon-sub001/ai"
	"github.com/leonj1/Archon-sub001/ai/openai"
	"github.com/leonj1/Archon-sub001/index"
	"github.com/leonj1/Archon-sub001/index/hnsw"
	"github.com/leonj1/Archon-sub001/ingestion"
	"github.com/leonj1/Archon-sub001/search"
	"github.com/leonj1/Archon-sub001/storage"
	"github.com/leonj1/Archon-sub001/storage/badger"
)

// Service bundles the storage backend, vector index, embedding provider and
// the ingestion/search entry points over them.
type Service struct {
	backend      *badger.Backend
	sourceRepo   storage.SourceRepository
	documentRepo storage.DocumentRepository
	idx          *hnsw.Store
	indexPath    string
	embedder     ai.Embedder
	logger       *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig *ai.Config
	embedder ai.Embedder
	inMemory bool
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(config *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = config
	}
}

// WithEmbedder replaces the default OpenAI-compatible embedder. Used by tests
// and by callers that bring their own provider.
func WithEmbedder(embedder ai.Embedder) ServiceOption {
	return func(o *serviceOptions) {
		o.embedder = embedder
	}
}

// WithInMemoryStorage keeps all records in memory. Used by tests.
func WithInMemoryStorage() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

func NewService(filePath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	idx := hnsw.NewStore()
	var indexPath string
	if !options.inMemory {
		indexPath = filepath.Join(filePath, "vectors.hnsw")
		if err := idx.Load(indexPath); err != nil && !os.IsNotExist(err) {
			backend.Close()
			return nil, err
		}
	}

	return &Service{
		backend:      backend,
		sourceRepo:   badger.NewSourceRepository(backend),
		documentRepo: badger.NewDocumentRepository(backend),
		idx:          idx,
		indexPath:    indexPath,
		embedder:     embedder,
		logger:       slog.Default(),
	}, nil
}

// SaveIndex writes the vector index next to the database. It is a no-op for
// in-memory services.
func (s *Service) SaveIndex() error {
	if s.indexPath == "" {
		return nil
	}
	return s.idx.Save(s.indexPath)
}

func (s *Service) Close() error {
	if err := s.SaveIndex(); err != nil {
		s.logger.Error("error saving vector index", "err", err)
	}
	if err := s.idx.Close(); err != nil {
		s.logger.Error("error closing vector index", "err", err)
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (s *Service) SourceRepository() storage.SourceRepository {
	return s.sourceRepo
}

func (s *Service) DocumentRepository() storage.DocumentRepository {
	return s.documentRepo
}

func (s *Service) VectorIndex() index.VectorIndex {
	return s.idx
}

// NewIngestionPipeline creates a pipeline bound to this service's storage,
// index and embedder. The caller supplies the fetch capability.
func (s *Service) NewIngestionPipeline(fetcher ingestion.Fetcher, opts ...ingestion.PipelineOption) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(s.sourceRepo, s.documentRepo, fetcher, s.embedder, s.idx, opts...)
}

func (s *Service) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(s.sourceRepo, s.idx, s.embedder, opts...)
}
