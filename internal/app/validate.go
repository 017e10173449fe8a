package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	payloadschema "horse.fit/sift/schema"
)

type validateResult struct {
	Files    int
	Payloads int
	Valid    int
	Invalid  int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "testdata/records", "Directory containing .json or .ndjson record payload files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := collectPayloadFiles(strings.TrimSpace(*dir), *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}

	result := validateResult{}
	for _, path := range files {
		result.Files++
		validatePayloadFile(path, &result)
	}

	fmt.Printf(
		"validate files=%d payloads=%d valid=%d invalid=%d dir=%s recursive=%t\n",
		result.Files,
		result.Payloads,
		result.Valid,
		result.Invalid,
		strings.TrimSpace(*dir),
		*recursive,
	)

	if result.Files == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no payload files found under %s\n", strings.TrimSpace(*dir))
		return 1
	}
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

func validatePayloadFile(path string, result *validateResult) {
	raw, err := os.ReadFile(path)
	if err != nil {
		result.Payloads++
		result.Invalid++
		fmt.Fprintf(os.Stderr, "INVALID %s: read failed: %v\n", path, err)
		return
	}

	if strings.EqualFold(filepath.Ext(path), ".ndjson") {
		scanner := bufio.NewScanner(bytes.NewReader(raw))
		scanner.Buffer(make([]byte, 0, 64*1024), maxInputLineBytes)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			result.Payloads++
			if _, err := payloadschema.ValidateRecordPayload(json.RawMessage(line)); err != nil {
				result.Invalid++
				fmt.Fprintf(os.Stderr, "INVALID %s:%d: %v\n", path, lineNo, err)
				continue
			}
			result.Valid++
		}
		if err := scanner.Err(); err != nil {
			result.Payloads++
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: scan failed: %v\n", path, err)
		}
		return
	}

	result.Payloads++
	if !json.Valid(raw) {
		result.Invalid++
		fmt.Fprintf(os.Stderr, "INVALID %s: malformed JSON\n", path)
		return
	}
	if _, err := payloadschema.ValidateRecordPayload(json.RawMessage(raw)); err != nil {
		result.Invalid++
		fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
		return
	}
	result.Valid++
}

func collectPayloadFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if isPayloadFile(entry.Name()) {
				files = append(files, filepath.Join(cleanRoot, entry.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if isPayloadFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}

func isPayloadFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return strings.EqualFold(ext, ".json") || strings.EqualFold(ext, ".ndjson")
}
