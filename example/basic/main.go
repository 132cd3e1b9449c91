package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/converse"
	"github.com/siherrmann/converse/core/pipeline"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/llm"
	"github.com/siherrmann/converse/model"
)

const sampleContent1 = `Our company offers a range of cloud infrastructure services.

We provide managed PostgreSQL databases with automated backups and point-in-time recovery.
All plans include monitoring dashboards, alerting and 24/7 support.

The standard plan starts at 49 euros per month and includes 100 GB of storage.
The premium plan adds read replicas, connection pooling and a 99.99% uptime SLA.`

const sampleContent2 = `Getting started with our platform takes three steps.

First, create an account and verify your email address.
Second, create a project and choose a region close to your users.
Third, provision a database instance from the dashboard or the API.

Instances are ready within two minutes and can be resized at any time without downtime.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Local sentence transformer embeddings (all-MiniLM-L6-v2, 384 dimensions)
	chunker, err := pipeline.NewChunker(model.DefaultRecursiveConfig())
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	pipe, err := pipeline.NewPipeline(chunker, embedder, pipeline.DefaultEmbeddingDimension)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	generator, err := llm.NewOpenAIGenerator(os.Getenv("OPENAI_API_KEY"), "")
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}

	c, err := converse.NewWithDatabase(converse.DefaultConfig(), dbConfig, pipe, generator)
	if err != nil {
		log.Fatalf("Failed to create converse: %v", err)
	}
	defer c.Close()

	// Ingest the documentation
	for _, doc := range []*model.Document{
		model.NewDocument("Services", "services.md", sampleContent1),
		model.NewDocument("Getting Started", "getting-started.md", sampleContent2),
	} {
		numChunks, err := c.IngestDocument(doc)
		if err != nil {
			log.Fatalf("Failed to ingest document %s: %v", doc.Title, err)
		}
		fmt.Printf("Ingested %q as %d chunks\n", doc.Title, numChunks)
	}

	ctx := context.Background()

	// First question starts a new conversation
	first, err := c.Chat(ctx, "How much does the standard plan cost?", nil)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	fmt.Printf("\nQ: How much does the standard plan cost?\nA: %s\n", first.Response)

	// Follow-up question reuses the conversation
	second, err := c.Chat(ctx, "And what does the premium plan add?", &first.ConversationID)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	fmt.Printf("\nQ: And what does the premium plan add?\nA: %s\n", second.Response)

	// Meta question about the conversation itself
	meta, err := c.Chat(ctx, "What did I ask you first?", &second.ConversationID)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	fmt.Printf("\nQ: What did I ask you first?\nA: %s\n", meta.Response)

	// Booking request, persisted through the bookings handler
	booking, err := c.Chat(ctx, "I want to book an interview. My name is Jane Doe, my email is jane@example.com, on 12/05/2026 at 14:30", &second.ConversationID)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	fmt.Printf("\nBooking: %s\n", booking.Response)
}
