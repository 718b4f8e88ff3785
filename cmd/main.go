package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/docchat/docchat/pkg/config"
)

func main() {
	// Optional .env for OLLAMA_BASE_URL, DATABASE_URL, PORT.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error: %v", e)
		}
		os.Exit(1)
	}

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}

	switch command {
	case "serve":
		err = runServe(cfg)
	case "ingest":
		err = runIngest(cfg, flag.Args()[1:])
	case "chat":
		err = runChat(cfg)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: docchat [flags] <command>

Commands:
  serve           start the HTTP server (default)
  ingest <files>  ingest documents from the command line
  chat            interactive chat in the terminal

Flags:
`)
	flag.PrintDefaults()
}
