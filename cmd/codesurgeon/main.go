package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/heefoo/codesurgeon/internal/config"
	"github.com/heefoo/codesurgeon/internal/warmcache"
	"github.com/heefoo/codesurgeon/pkg/engine"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "modify":
			modifyCmd(os.Args[2:])
			return
		case "validate":
			validateCmd(os.Args[2:])
			return
		case "warm":
			warmCmd(os.Args[2:])
			return
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "version":
			fmt.Println("codesurgeon v0.1.0")
			return
		case "help":
			printHelp()
			return
		}
	}
	printHelp()
}

func loadEngine(configPath string) *engine.Engine {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if warnings := config.Validate(cfg); len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "config warning: %s\n", w)
		}
	}
	e, err := engine.Initialize(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize engine: %v\n", err)
		os.Exit(1)
	}
	return e
}

func modifyCmd(args []string) {
	fs := flag.NewFlagSet("modify", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	cwd := fs.String("cwd", ".", "Working directory the path is relative to")
	function := fs.String("function", "", "Function identifier, name[.member]:line")
	bodyFile := fs.String("body-file", "", "Path to a file containing the replacement body")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) == 0 || *function == "" || *bodyFile == "" {
		fmt.Println("Usage: codesurgeon modify --function <id> --body-file <path> <relative-file>")
		os.Exit(1)
	}

	body, err := os.ReadFile(*bodyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read body file: %v\n", err)
		os.Exit(1)
	}

	e := loadEngine(*configPath)
	defer e.Close()

	result, aerr := e.ModifyFunctionBody(context.Background(), *cwd, remaining[0], *function, string(body))
	if aerr != nil {
		fmt.Fprintf(os.Stderr, "edit failed: %v\n", aerr)
		os.Exit(1)
	}
	fmt.Printf("edit applied: semantic=%.2f structural=%.2f\n", result.ValidationResult.SemanticScore, result.ValidationResult.StructuralScore)
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	cwd := fs.String("cwd", ".", "Working directory the path is relative to")
	function := fs.String("function", "", "Function identifier, name[.member]:line")
	bodyFile := fs.String("body-file", "", "Path to a file containing the candidate body")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) == 0 || *function == "" || *bodyFile == "" {
		fmt.Println("Usage: codesurgeon validate --function <id> --body-file <path> <relative-file>")
		os.Exit(1)
	}

	body, err := os.ReadFile(*bodyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read body file: %v\n", err)
		os.Exit(1)
	}

	e := loadEngine(*configPath)
	defer e.Close()

	result, aerr := e.ValidateFunctionBodyChange(context.Background(), *cwd, remaining[0], *function, string(body), nil)
	if aerr != nil {
		fmt.Fprintf(os.Stderr, "validation error: %v\n", aerr)
		os.Exit(1)
	}
	fmt.Printf("valid=%v semantic=%.2f structural=%.2f\n", result.Valid, result.SemanticScore, result.StructuralScore)
}

func warmCmd(args []string) {
	fs := flag.NewFlagSet("warm", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) == 0 {
		fmt.Println("Usage: codesurgeon warm <directory>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	e, err := engine.Initialize(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize engine: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()

	err = warmcache.Warm(context.Background(), e.ParseService(), remaining[0], nil, func(s warmcache.Status) {
		fmt.Printf("\rscanned=%d parsed=%d skipped=%d errors=%d", s.FilesScanned, s.FilesParsed, s.FilesSkipped, s.Errors)
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warm failed: %v\n", err)
		os.Exit(1)
	}
}

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) == 0 {
		fmt.Println("Usage: codesurgeon rollback <relative-file>")
		os.Exit(1)
	}

	e := loadEngine(*configPath)
	defer e.Close()

	backup, aerr := e.RollbackChange(remaining[0])
	if aerr != nil {
		fmt.Fprintf(os.Stderr, "rollback failed: %v\n", aerr)
		os.Exit(1)
	}
	fmt.Printf("rolled back %s to the state before %q\n", backup.RelativePath, backup.OperationName)
}

func printHelp() {
	fmt.Print(`codesurgeon - syntax-aware code editing engine

Commands:
  modify    --function <id> --body-file <path> <file>   Replace a function's body
  validate  --function <id> --body-file <path> <file>   Score a candidate body without writing it
  warm      <directory>                                  Pre-parse a directory into the cache
  rollback  <file>                                        Revert a file to its last backup
  version                                                 Show version
  help                                                    Show this help
`)
}
