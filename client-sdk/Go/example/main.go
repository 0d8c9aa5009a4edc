/*
Example script for the ragkit Go SDK.

Run this after the ragkit server has started (default address: http://localhost:8080).
It will:
  1. Perform a health-check.
  2. Embed two sentences.
  3. Ingest a few documents.
  4. Retrieve and query them.
  5. Clean up by deleting the documents.

Usage:
$ go run ./client-sdk/Go/example
*/
package main

import (
	"context"
	"fmt"

	"ragkit/client-sdk/Go/client"
)

func main() {
	ctx := context.Background()
	c := client.NewRagkitClient("http://localhost:8080")

	// 1. Health check
	ok, err := c.HealthCheck(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println("Health check:", ok)

	// 2. Embeddings
	vecs, err := c.Embed(ctx, []string{"I like chocolate.", "I like ice cream."})
	if err != nil {
		panic(err)
	}
	fmt.Printf("We have %d embeddings\n", len(vecs))

	// 3. Ingest documents
	docs := []client.Document{
		{ID: "inception", Text: "Inception is a science fiction film about dreams within dreams.", Metadata: map[string]any{"director": "Christopher Nolan", "theme": "Mind-bending"}},
		{ID: "godfather", Text: "The Godfather follows a mafia family in New York.", Metadata: map[string]any{"director": "Francis Ford Coppola", "theme": "Mafia"}},
	}
	res, err := c.IngestDocuments(ctx, docs)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Ingested %d documents\n", res.Inserted+res.Updated)

	// 4a. Retrieve with a metadata filter
	nodes, err := c.Retrieve(ctx, "What is inception about?", client.RetrieveOptions{
		SimilarityTopK: 2,
		Filters:        &client.Filters{Filters: []client.Filter{{Key: "theme", Value: "Mind-bending"}}},
	})
	if err != nil {
		panic(err)
	}
	for _, n := range nodes {
		fmt.Printf("%.3f %s\n", n.Score, n.Node.Text)
	}

	// 4b. Query
	answer, err := c.Query(ctx, "Who leads the family in The Godfather?", client.RetrieveOptions{})
	if err != nil {
		panic(err)
	}
	fmt.Println("Answer:", answer.Answer)

	// 5. Clean up
	for _, d := range docs {
		if err := c.DeleteDocument(ctx, d.ID); err != nil {
			panic(err)
		}
	}
	fmt.Println("Deleted example documents")
}
