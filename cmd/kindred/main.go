// kindred runs the companion engine as an MCP stdio server and offers
// maintenance commands against its database.
//
// Configuration is read from flags, KINDRED_* environment variables and a
// .env file in the working directory:
//
//	KINDRED_DB_PATH          SQLite database path (default: ./data/kindred.db)
//	KINDRED_DECAY_INTERVAL   how often memories decay (default: 1h)
//	KINDRED_OPENAI_API_KEY   enables the OpenAI response generator
//	KINDRED_OPENAI_BASE_URL  OpenAI-compatible endpoint
//	KINDRED_OPENAI_MODEL     chat model (default: gpt-4o-mini)
//	KINDRED_GEMINI_API_KEY   enables the Gemini generator when no OpenAI key is set
//	KINDRED_REDIS_ADDR       share per-companion locks through Redis
//	KINDRED_LOG_LEVEL        debug, info, warn or error (default: info)
//
// Usage:
//
//	go install github.com/goblincore/kindred/cmd/kindred
//	kindred serve --metrics-addr :9090
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
