package main

import (
	"fmt"
	"os"

	"shortener/internal/config"
)

func main() {
	fmt.Println("# Shortener Environment Variables")
	fmt.Println()
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println("Variables in a .env file next to the binary are read as well; the")
	fmt.Println("process environment wins over .env.")
	fmt.Println()
	fmt.Println("## Available Environment Variables (with defaults)")
	fmt.Println()

	defaults, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load defaults:", err)
		os.Exit(1)
	}
	for _, example := range config.EnvExample(defaults) {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Listen on another port")
	fmt.Println("export SHORTENER_SERVER_PORT=8080")
	fmt.Println()
	fmt.Println("# Point at a Redis server")
	fmt.Println("export SHORTENER_STORAGE_TYPE=redis")
	fmt.Println("export SHORTENER_STORAGE_REDIS_HOST=redis.internal")
	fmt.Println()
	fmt.Println("# Serialize token-bucket checks per caller")
	fmt.Println("export SHORTENER_RATELIMIT_LOCK_ENABLED=true")
	fmt.Println()
	fmt.Println("# Allow two frontends")
	fmt.Println("export SHORTENER_CORS_ALLOWEDORIGINS=https://example.com,https://app.example.com")
	fmt.Println()
	fmt.Println("./shortener -config configs/shortener.yaml")
	fmt.Println("```")
}
