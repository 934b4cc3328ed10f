package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/treesum-io/treesum/internal/llm"
	"github.com/treesum-io/treesum/internal/llm/openai"
)

// llmping sends one tiny completion to verify credentials, connectivity, and
// that the provider reports usage numbers.
func main() {
	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Println("ERROR: OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := openai.NewClient(openai.Config{
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
		Timeout: 30 * time.Second,
	}, nil)

	start := time.Now()
	resp, err := client.Invoke(ctx, "Reply with the single word: pong", llm.Options{
		MaxOutputTokens: 8,
		Temperature:     0,
	})
	if err != nil {
		log.Fatalf("LLM health: FAIL (%v)", err)
	}

	log.Printf("LLM health: OK (%s, %dms)", resp.Content, time.Since(start).Milliseconds())
	if billed, ok := resp.Usage.Billed(); ok {
		log.Printf("usage reported: %d tokens", billed)
	} else {
		log.Println("usage reported: none (budget tracking will fall back to estimates)")
	}
}
