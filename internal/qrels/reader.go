package qrels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

const maxLineSize = 1024 * 1024

// ReadQrels parses TREC qrels lines: "qid iter docno grade".
// source names the input in error messages.
func ReadQrels(r io.Reader, source string, policy DuplicatePolicy) (*Qrels, error) {
	var judgments []Judgment

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errors.FormatError(source, lineNo, fmt.Sprintf("expected 4 fields, got %d", len(fields)))
		}

		grade, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errors.FormatError(source, lineNo, fmt.Sprintf("grade %q is not an integer", fields[3]))
		}

		judgments = append(judgments, Judgment{
			QueryID: fields[0],
			DocID:   fields[2],
			Grade:   grade,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError("reading qrels "+source, err)
	}

	return New(judgments, policy)
}

// ReadQrelsFile opens path and parses it with ReadQrels.
func ReadQrelsFile(path string, policy DuplicatePolicy) (*Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError("opening qrels file", err)
	}
	defer f.Close()

	return ReadQrels(f, filepath.Base(path), policy)
}

// ReadTopics parses "qid<TAB>text" lines.
func ReadTopics(r io.Reader, source string) ([]Query, error) {
	var queries []Query

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		id, text, ok := strings.Cut(line, "\t")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, errors.FormatError(source, lineNo, "expected query id and text separated by a tab")
		}

		queries = append(queries, Query{
			ID:   strings.TrimSpace(id),
			Text: strings.TrimSpace(text),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError("reading topics "+source, err)
	}

	return queries, nil
}

// ReadTopicsFile opens path and parses it with ReadTopics.
func ReadTopicsFile(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError("opening topics file", err)
	}
	defer f.Close()

	return ReadTopics(f, filepath.Base(path))
}
