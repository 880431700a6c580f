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
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	archon "github.com/leonj1/Archon-sub001"
	"github.com/leonj1/Archon-sub001/ai"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/ingestion"
	"github.com/leonj1/Archon-sub001/storage"
)

func main() {
	app := &cli.App{
		Name:   "archon",
		Usage:  "Document ingestion and semantic search over a local vector index",
		Before: setupLogger,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a source and index its content",
				ArgsUsage: "<origin>",
				Action:    ingestCommand,
				Flags: append(append(commonFlags(),
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name for the source (defaults to the origin)",
					}),
					ingestTuningFlags()...,
				),
			},
			{
				Name:      "recrawl",
				Usage:     "Re-ingest a known source, replacing its indexed content",
				ArgsUsage: "<origin>",
				Action:    recrawlCommand,
				Flags:     append(commonFlags(), ingestTuningFlags()...),
			},
			{
				Name:      "search",
				Usage:     "Search ingested content",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "source",
						Usage: "Restrict results to one source by origin",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
				),
			},
			{
				Name:   "list",
				Usage:  "List known sources and their status",
				Action: listCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (pending, crawling, processing, storing, completed, failed)",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show one source's lifecycle record",
				ArgsUsage: "<origin>",
				Action:    statusCommand,
				Flags:     []cli.Flag{dbFlag()},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}
}

func ingestTuningFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "max-depth",
			Usage: "Maximum directory depth to walk below the origin",
			Value: 2,
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Chunk window size in characters",
			Value: 800,
		},
		&cli.IntFlag{
			Name:  "chunk-overlap",
			Usage: "Overlap between adjacent chunks in characters",
			Value: 100,
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of chunks per embedding request",
			Value: 32,
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum retry attempts for failed operations",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: 500 * time.Millisecond,
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		dbFlag(),
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
	}
}

func openService(c *cli.Context) (*archon.Service, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	service, err := archon.NewService(c.String("db"), archon.WithAIConfig(aiConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return service, nil
}

func ingestCommand(c *cli.Context) error {
	name := c.String("name")
	return runIngest(c, name, false)
}

// recrawlCommand re-runs ingestion for an origin that was ingested before.
// The replace protocol supersedes the previous generation's entries once the
// run completes.
func recrawlCommand(c *cli.Context) error {
	return runIngest(c, "", true)
}

func runIngest(c *cli.Context, name string, requireExisting bool) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one origin argument")
	}
	origin, err := originToURL(c.Args().First())
	if err != nil {
		return err
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	if requireExisting {
		existing, err := service.SourceRepository().GetSource(c.Context, core.IDFromContent(origin))
		if err != nil {
			return fmt.Errorf("source %s has never been ingested: %w", origin, err)
		}
		name = existing.Name
	}

	pipeline, err := service.NewIngestionPipeline(filesystemFetcher{})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	if name == "" {
		name = origin
	}

	opts := ingestion.DefaultOptions()
	opts.MaxDepth = c.Int("max-depth")
	opts.ChunkSize = c.Int("chunk-size")
	opts.ChunkOverlap = c.Int("chunk-overlap")
	opts.BatchSize = c.Int("batch-size")
	opts.MaxRetries = c.Int("max-retries")
	opts.RetryBaseDelay = c.Duration("retry-delay")

	runID, err := pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      name,
		OriginURL: origin,
	}, &opts)
	if err != nil {
		return fmt.Errorf("failed to start ingestion: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Origin: %s\n", origin)
	fmt.Fprintf(os.Stderr, "Run: %d\n\n", runID)

	// Ctrl-C cancels the run; the run still records its failed status.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "cancelling...")
		pipeline.Cancel(runID)
	}()

	// The run may already have finished before the subscription landed, so the
	// wait also polls the source record for a terminal status.
	events, cancel := pipeline.Subscribe(runID)
	defer cancel()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	var source *core.Source
	for source == nil {
		select {
		case event, open := <-events:
			if !open {
				events = nil
				continue
			}
			if event.Detail != "" {
				fmt.Fprintf(os.Stderr, "[%s] %3d%% %s\n", event.Stage, event.Percent, event.Detail)
			} else {
				fmt.Fprintf(os.Stderr, "[%s] %3d%%\n", event.Stage, event.Percent)
			}
		case <-ticker.C:
			current, err := service.SourceRepository().GetSource(context.Background(), core.IDFromContent(origin))
			if err != nil {
				return err
			}
			if current.Status.Terminal() {
				source = current
			}
		}
	}
	if source.Status != core.StatusCompleted {
		return fmt.Errorf("ingestion failed: %s", source.StatusDetail)
	}
	fmt.Fprintf(os.Stderr, "\nIngested %d documents, %d chunks (%d failed)\n",
		source.DocumentCount, source.ChunkCount, source.FailedChunkCount)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("expected a query argument")
	}
	query := strings.Join(c.Args().Slice(), " ")

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	searcher, err := service.NewSearcher()
	if err != nil {
		return err
	}

	var sourceID core.ID
	if origin := c.String("source"); origin != "" {
		originURL, err := originToURL(origin)
		if err != nil {
			return err
		}
		sourceID = core.IDFromContent(originURL)
	}

	results, err := searcher.Search(c.Context, query, c.Int("limit"), sourceID)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, result := range results {
		fmt.Printf("%2d. [%.4f] %s #%d\n", i+1, result.Score, result.DocumentURL, result.Ordinal)
		if result.Title != "" {
			fmt.Printf("    %s\n", result.Title)
		}
		fmt.Printf("    %s\n\n", snippet(result.Text, 200))
	}
	return nil
}

func listCommand(c *cli.Context) error {
	service, err := openServiceStorageOnly(c)
	if err != nil {
		return err
	}
	defer service.Close()

	opts := storage.ListOptions{}
	if status := c.String("status"); status != "" {
		opts.Status = core.SourceStatus(status)
		if err := core.ValidateStatus(opts.Status); err != nil {
			return err
		}
	}

	sources, err := service.SourceRepository().ListSources(c.Context, opts)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Println("no sources")
		return nil
	}
	for _, source := range sources {
		fmt.Printf("%-12s gen %-3d docs %-5d chunks %-6d %s\n",
			source.Status, source.Generation, source.DocumentCount, source.ChunkCount, source.OriginURL)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one origin argument")
	}
	origin, err := originToURL(c.Args().First())
	if err != nil {
		return err
	}

	service, err := openServiceStorageOnly(c)
	if err != nil {
		return err
	}
	defer service.Close()

	source, err := service.SourceRepository().GetSource(c.Context, core.IDFromContent(origin))
	if err != nil {
		return err
	}

	fmt.Printf("Name:          %s\n", source.Name)
	fmt.Printf("Origin:        %s\n", source.OriginURL)
	fmt.Printf("Status:        %s\n", source.Status)
	if source.StatusDetail != "" {
		fmt.Printf("Detail:        %s\n", source.StatusDetail)
	}
	fmt.Printf("Generation:    %d\n", source.Generation)
	fmt.Printf("Documents:     %d\n", source.DocumentCount)
	fmt.Printf("Chunks:        %d (%d failed)\n", source.ChunkCount, source.FailedChunkCount)
	fmt.Printf("Updated:       %s\n", source.UpdatedAt.Format(time.RFC3339))
	return nil
}

// openServiceStorageOnly opens the service without requiring embedding flags.
// Commands that never embed use it.
func openServiceStorageOnly(c *cli.Context) (*archon.Service, error) {
	service, err := archon.NewService(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return service, nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
