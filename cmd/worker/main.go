// The worker binary hosts one inference engine per process: a
// streaming transcriber or a toxic-span detector, selected by flag.
// Commands arrive framed on stdin, results leave framed on stdout, so
// all logging goes to stderr.
package main

import (
	"flag"
	"os"
	"time"

	"speech-moderation-gateway/internal/moderation"
	"speech-moderation-gateway/internal/observability/logging"
	"speech-moderation-gateway/internal/worker"
)

func main() {
	kind := flag.String("kind", "transcriber", "worker kind: transcriber or detector")
	model := flag.String("model", "", "model id to load")
	flag.Parse()

	logging.Init(logging.Config{
		Level:      os.Getenv("LOG_LEVEL"),
		Format:     os.Getenv("LOG_FORMAT"),
		TimeFormat: time.RFC3339,
		Output:     os.Stderr,
	})
	workerLog := logging.WithWorker(*kind, *model)

	var engine worker.Engine
	switch *kind {
	case "transcriber":
		if *model == "" {
			workerLog.Fatal().Msg("transcriber requires -model")
		}
		engine = worker.NewTranscriber(*model, worker.NewStubRecognizer())
	case "detector":
		engine = worker.NewDetector(moderation.NewAnalyzer(moderation.NewLexiconClassifier()))
	default:
		workerLog.Fatal().Str("kind", *kind).Msg("unknown worker kind")
	}

	runner := worker.NewRunner(engine, os.Stdin, os.Stdout, workerLog)
	if err := runner.Run(); err != nil {
		workerLog.Error().Err(err).Msg("worker loop failed")
		os.Exit(1)
	}
}
