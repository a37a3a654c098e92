package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/loqalabs/loqa-translate/internal/annotate"
	"github.com/loqalabs/loqa-translate/internal/client"
	"github.com/loqalabs/loqa-translate/internal/config"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'translate', 'validate' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "translate":
		os.Exit(runTranslate(os.Args[2:]))
	case "validate":
		var configPath string
		validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
		validateCmd.StringVar(&configPath, "config", "loqa-translate.yaml", "Path to configuration file")
		validateCmd.Parse(os.Args[2:])
		if _, err := config.Load(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("config valid")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runTranslate(args []string) int {
	var (
		endpoint   string
		sourceLang string
		targetLang string
		timeout    time.Duration
	)
	defaults, err := config.Load("")
	if err != nil {
		defaults = config.Default()
	}
	cmd := flag.NewFlagSet("translate", flag.ExitOnError)
	cmd.StringVar(&endpoint, "endpoint", defaults.TranslateURL(), "Translate endpoint URL")
	cmd.StringVar(&sourceLang, "from", defaults.Session.SourceLang, "Source language code")
	cmd.StringVar(&targetLang, "to", defaults.Session.TargetLang, "Target language code")
	cmd.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	cmd.Parse(args)

	if cmd.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: loqa-translate-ctl translate [-from en-US] [-to pl-PL] TEXT")
		return 2
	}
	text := cmd.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res := client.New(endpoint, nil).Translate(ctx, text, sourceLang, targetLang)
	status := annotate.Annotate(res.Source, sourceLang, targetLang)
	if res.Failed() {
		fmt.Fprintf(os.Stderr, "Translation %s: %s\n", status.Label, res.Message)
		return 1
	}
	fmt.Printf("Translation %s: %s\n", status.Label, res.TranslatedText)
	return 0
}
