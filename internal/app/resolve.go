package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/sift/internal/cli"
	"horse.fit/sift/internal/config"
	"horse.fit/sift/internal/db"
	"horse.fit/sift/internal/dedup"
	"horse.fit/sift/internal/ingest"
	"horse.fit/sift/internal/logging"
	"horse.fit/sift/internal/store"
	payloadschema "horse.fit/sift/schema"
)

const maxInputLineBytes = 1 << 20

type resolveRunOutput struct {
	RunID            int64  `json:"run_id"`
	RunUUID          string `json:"run_uuid"`
	RecordsPersisted int    `json:"records_persisted"`
	Status           string `json:"status"`
}

type resolveOutput struct {
	Strategy   string                 `json:"strategy"`
	Stats      dedup.Stats            `json:"stats"`
	Unique     []dedup.Record         `json:"unique"`
	Duplicates []dedup.ResolvedRecord `json:"duplicates"`
	Run        *resolveRunOutput      `json:"run,omitempty"`
}

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	input := fs.String("input", "", "Record payloads as a JSON array or NDJSON file (defaults to stdin)")
	strategyFlag := fs.String("strategy", "", "Resolution strategy: sequence or word_overlap (defaults to DEDUP_STRATEGY)")
	offline := fs.Bool("offline", false, "Resolve against the batch only, without a database")
	commit := fs.Bool("commit", false, "Persist unique records and record a resolution run")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "resolve does not accept positional arguments")
		return 2
	}
	if *offline && *commit {
		fmt.Fprintln(os.Stderr, "--commit requires database access; drop --offline")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	strategyRaw := strings.TrimSpace(*strategyFlag)
	if strategyRaw == "" {
		strategyRaw = cfg.DedupStrategy
	}
	strategy, err := dedup.ParseStrategy(strategyRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid strategy: %v\n", err)
		return 2
	}

	payloads, err := readBatchPayloads(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		return 2
	}
	if len(payloads) == 0 {
		fmt.Fprintln(os.Stderr, "Invalid input: no records to resolve")
		return 2
	}

	items := make([]ingest.Item, 0, len(payloads))
	for i, raw := range payloads {
		payload, err := payloadschema.ValidateRecordPayload(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid record %d: %v\n", i+1, err)
			return 2
		}
		items = append(items, ingest.RecordFromPayload(payload, logger))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var candidateStore dedup.CandidateStore = store.Null{}
	var pool *db.Pool
	if !*offline {
		pool, err = db.NewPool(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("resolve failed to connect to database")
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			return 1
		}
		defer pool.Close()
		candidateStore = store.NewPostgres(pool, logger)
	}

	resolver, err := dedup.NewResolver(candidateStore, dedupConfigFromConfig(cfg), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build resolver: %v\n", err)
		return 1
	}

	partition, err := resolver.Resolve(ctx, ingest.Records(items), strategy)
	if err != nil {
		logger.Error().Err(err).Msg("resolve failed")
		fmt.Fprintf(os.Stderr, "Resolve failed: %v\n", err)
		return 1
	}

	output := resolveOutput{
		Strategy:   string(strategy),
		Stats:      partition.Stats,
		Unique:     partition.Unique,
		Duplicates: partition.Duplicates,
	}

	if *commit {
		svc := ingest.NewService(pool, logger)
		result, err := svc.CommitPartition(ctx, ingest.Request{
			Strategy:  strategy,
			Items:     items,
			Partition: *partition,
		})
		if err != nil {
			logger.Error().Err(err).Msg("commit failed")
			fmt.Fprintf(os.Stderr, "Commit failed: %v\n", err)
			return 1
		}
		output.Run = &resolveRunOutput{
			RunID:            result.RunID,
			RunUUID:          result.RunUUID,
			RecordsPersisted: result.RecordsPersisted,
			Status:           result.Status,
		}
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := printResolveTables(output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}

func printResolveTables(output resolveOutput) error {
	summaryRows := [][]string{
		{"strategy", output.Strategy},
		{"total", fmt.Sprintf("%d", output.Stats.Total)},
		{"unique", fmt.Sprintf("%d", output.Stats.UniqueCount)},
		{"duplicates_internal", fmt.Sprintf("%d", output.Stats.InternalDuplicateCount)},
		{"duplicates_external", fmt.Sprintf("%d", output.Stats.ExternalDuplicateCount)},
		{"normalization_failures", fmt.Sprintf("%d", output.Stats.NormalizationFailures)},
	}
	if output.Run != nil {
		summaryRows = append(summaryRows,
			[]string{"run_id", fmt.Sprintf("%d", output.Run.RunID)},
			[]string{"records_persisted", fmt.Sprintf("%d", output.Run.RecordsPersisted)},
		)
	}
	if err := writeTable([]string{"metric", "value"}, summaryRows); err != nil {
		return err
	}

	if len(output.Duplicates) == 0 {
		return nil
	}

	fmt.Println()
	duplicateRows := make([][]string, 0, len(output.Duplicates))
	for _, dup := range output.Duplicates {
		duplicateRows = append(duplicateRows, []string{
			dup.Record.ID,
			dup.Record.OwnerID,
			string(dup.Outcome.Kind),
			duplicateTarget(dup.Outcome),
			truncateForTable(dup.Record.Text, 60),
		})
	}
	return writeTable([]string{"record_id", "owner_id", "kind", "duplicate_of", "text"}, duplicateRows)
}

func duplicateTarget(outcome dedup.Outcome) string {
	switch outcome.Kind {
	case dedup.OutcomeDuplicateOfBatch:
		return outcome.BatchRecordID
	case dedup.OutcomeDuplicateOfStored:
		return fmt.Sprintf("stored:%d", outcome.StoredRecordID)
	default:
		return ""
	}
}

func readBatchPayloads(path string) ([]json.RawMessage, error) {
	var raw []byte
	var err error

	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" || trimmedPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	} else {
		raw, err = os.ReadFile(trimmedPath)
		if err != nil {
			return nil, fmt.Errorf("read input file %q: %w", trimmedPath, err)
		}
	}

	return parseBatchPayloads(raw)
}

// parseBatchPayloads accepts either a JSON array of payload objects or
// newline-delimited JSON with one payload per line.
func parseBatchPayloads(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("input is empty")
	}

	if trimmed[0] == '[' {
		var payloads []json.RawMessage
		if err := json.Unmarshal(trimmed, &payloads); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return payloads, nil
	}

	var payloads []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d is not valid JSON", lineNo)
		}
		payloads = append(payloads, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}

	return payloads, nil
}
