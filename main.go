package main

import (
	"flag"
	"fmt"
	"os"

	"feedmirror/internal/di"
	"feedmirror/internal/structures"
)

func main() {
	flags := &structures.CliFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config.yaml", "path to the configuration file")
	flag.BoolVar(&flags.DebugMode, "debug", false, "duplicate logs to stdout")
	flag.Parse()

	if _, err := di.InitApp(flags); err != nil {
		fmt.Fprintf(os.Stderr, "feedmirror: %s\n", err)
		os.Exit(1)
	}
}
