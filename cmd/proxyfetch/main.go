// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

// proxyfetch runs request specs from a YAML config file and writes the
// results as JSON. With -watch it reruns whenever the config changes, which
// makes iterating on pagination setups quick.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	httpsoverproxy "github.com/FunTW/go-httpsoverproxy"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML run config")
	outputPath := flag.String("output", "", "write results to this file instead of stdout")
	watch := flag.Bool("watch", false, "rerun whenever the config file changes")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: proxyfetch -config <file> [-output <file>] [-watch] [-verbose]")
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	logger := httpsoverproxy.NewZerologLogger(zl)

	if err := run(*configPath, *outputPath, logger, zl); err != nil {
		zl.Error().Err(err).Msg("run failed")
		if !*watch {
			os.Exit(1)
		}
	}
	if !*watch {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zl.Fatal().Err(err).Msg("cannot create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(*configPath); err != nil {
		zl.Fatal().Err(err).Msg("cannot watch config file")
	}
	zl.Info().Str("config", *configPath).Msg("watching for changes")

	// Editors often fire several events per save; a short debounce collapses
	// them into one rerun.
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				if err := run(*configPath, *outputPath, logger, zl); err != nil {
					zl.Error().Err(err).Msg("run failed")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zl.Error().Err(err).Msg("watcher error")
		}
	}
}

func run(configPath, outputPath string, logger httpsoverproxy.Logger, zl zerolog.Logger) error {
	client, cfg, validationErrs, err := httpsoverproxy.NewClientFromConfig(configPath)
	if len(validationErrs) != 0 {
		var sb strings.Builder
		for _, ve := range validationErrs {
			sb.WriteString("\n  " + ve.Error())
		}
		return fmt.Errorf("config is invalid:%s", sb.String())
	}
	if err != nil {
		return err
	}
	defer client.Close()
	client.SetLogger(logger)

	started := time.Now()
	results, runErr := client.DoAll(context.Background(), cfg.Requests, cfg.Batch)

	var output any = results
	if cfg.Batch.Aggregation != nil {
		output = httpsoverproxy.Aggregate(results, cfg.Batch.Aggregation)
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode results: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(data, '\n'), 0o644); err != nil {
			return err
		}
		zl.Info().Str("output", outputPath).Dur("took", time.Since(started)).Msg("results written")
	} else {
		fmt.Println(string(data))
	}

	return runErr
}
