package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ocx/fastled-compile-svc/pkg/client"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("FASTLED_COMPILE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:80"
	}
	authToken := os.Getenv("FASTLED_COMPILE_TOKEN")

	c := client.New(client.Config{BaseURL: baseURL, AuthToken: authToken})
	ctx := context.Background()

	switch os.Args[1] {
	case "healthz":
		cmdHealthz(ctx, c)
	case "settings":
		cmdSettings(ctx, c)
	case "info":
		cmdInfo(ctx, c)
	case "inuse":
		cmdInUse(ctx, c)
	case "compile":
		cmdCompile(ctx, c, os.Args[2:])
	case "rebuild":
		cmdRebuild(ctx, c, os.Args[2:])
	case "version":
		fmt.Printf("fastled-wasm-compile-client v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fastled-wasm-compile-client v` + version + `

Usage: fastled-wasm-compile-client <command> [flags]

Commands:
  healthz              Check service liveness
  settings             Print the service's configured settings
  info                 Print compile stats and available examples
  inuse                Report whether the build lock is currently held
  compile               Compile a sketch archive
    --sketch <path>      Path to the sketch zip (required)
    --build <mode>       quick|release|debug (default: quick)
    --out <path>         Where to write the returned artifact (default: fastled_js.zip)
    --profile            Enable profiling
    --strict             Enable strict warnings-as-errors
    --native             Use native compiler instead of the managed build system
    --session-id <n>     Reuse an existing session
  rebuild               Stream a FastLED library rebuild
    --build <mode>       quick|release|debug (default: quick)
    --dry-run            Validate without actually syncing sources
  version               Print version
  help                  Show this help

Environment:
  FASTLED_COMPILE_URL     Service base URL (default: http://localhost:80)
  FASTLED_COMPILE_TOKEN   Bearer token for protected endpoints

Examples:
  fastled-wasm-compile-client compile --sketch blink.zip --build release
  fastled-wasm-compile-client rebuild --dry-run`)
}

func cmdHealthz(ctx context.Context, c *client.Client) {
	if err := c.Healthz(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func cmdSettings(ctx context.Context, c *client.Client) {
	settings, err := c.Settings(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(settings)
}

func cmdInfo(ctx context.Context, c *client.Client) {
	info, err := c.Info(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(info)
}

func cmdInUse(ctx context.Context, c *client.Client) {
	inUse, err := c.InUse(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(inUse)
}

func cmdCompile(ctx context.Context, c *client.Client, args []string) {
	var sketchPath, build, outPath string
	var profile, strict, native bool
	var sessionID uint64

	build = "quick"
	outPath = "fastled_js.zip"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--sketch":
			i++
			if i < len(args) {
				sketchPath = args[i]
			}
		case "--build":
			i++
			if i < len(args) {
				build = args[i]
			}
		case "--out":
			i++
			if i < len(args) {
				outPath = args[i]
			}
		case "--profile":
			profile = true
		case "--strict":
			strict = true
		case "--native":
			native = true
		case "--session-id":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &sessionID)
			}
		}
	}

	if sketchPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --sketch is required")
		os.Exit(1)
	}

	f, err := os.Open(sketchPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sketch: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	result, err := c.CompileWasm(ctx, f, client.CompileOptions{
		Build:     build,
		Profile:   profile,
		Strict:    strict,
		Native:    native,
		SessionID: sessionID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, result.Artifact, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write artifact: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (session=%s, %s)\n", outPath, result.SessionID, result.SessionInfo)
}

func cmdRebuild(ctx context.Context, c *client.Client, args []string) {
	build := "quick"
	var dryRun bool
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--build":
			i++
			if i < len(args) {
				build = args[i]
			}
		case "--dry-run":
			dryRun = true
		}
	}

	start := time.Now()
	err := c.StreamRebuild(ctx, client.RebuildOptions{Build: build, DryRun: dryRun}, func(e client.RebuildEvent) {
		fmt.Println(e.Payload)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed after %s: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
