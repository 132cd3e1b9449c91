package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/siherrmann/converse/core/eval"
	"github.com/siherrmann/converse/core/pipeline"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
)

func main() {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	harness, err := eval.NewHarness(embedder, eval.DefaultOptions(pipeline.DefaultEmbeddingDimension), logger)
	if err != nil {
		log.Fatalf("Failed to create harness: %v", err)
	}

	documents := []*model.Document{
		model.NewDocument("Databases", "databases.md", "PostgreSQL is a relational database with strong consistency guarantees.\n\nIt supports transactions, indexes and extensions like pgvector for similarity search."),
		model.NewDocument("Caching", "caching.md", "Caches keep frequently accessed data in memory.\n\nRedis is a popular in-memory cache used to reduce database load."),
		model.NewDocument("Queues", "queues.md", "Message queues decouple producers from consumers.\n\nThey buffer work so that spikes in traffic do not overwhelm downstream services."),
	}

	queries := []model.EvaluationQuery{
		{
			ID:                       "q-postgres",
			QueryText:                "Which database supports similarity search?",
			ExpectedRelevantChunkIDs: []string{model.ChunkID(documents[0].RID, 0)},
		},
		{
			ID:                       "q-cache",
			QueryText:                "How do I reduce database load with an in-memory store?",
			ExpectedRelevantChunkIDs: []string{model.ChunkID(documents[1].RID, 0)},
		},
		{
			ID:                       "q-queue",
			QueryText:                "What decouples producers from consumers?",
			ExpectedRelevantChunkIDs: []string{model.ChunkID(documents[2].RID, 0)},
		},
	}

	report, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	fmt.Println(eval.RenderMarkdown(report))

	if err := os.WriteFile("evaluation_report.md", []byte(eval.RenderMarkdown(report)), 0644); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	fmt.Println("Report written to evaluation_report.md")
}
