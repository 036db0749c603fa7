package run

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// placeholder is the constant second column of a TREC run line.
const placeholder = "Q0"

const maxLineSize = 1024 * 1024

// Write encodes r as TREC run lines "qid Q0 docno rank score tag",
// ordered by query id then rank.
func Write(w io.Writer, r *Run) error {
	tag := r.Tag
	if tag == "" {
		tag = "run"
	}
	if strings.ContainsAny(tag, " \t\r\n") {
		return errors.ValidationError(fmt.Sprintf("run tag %q contains whitespace", tag))
	}

	bw := bufio.NewWriter(w)
	for _, qid := range r.QueryIDs() {
		for _, e := range r.Entries[qid] {
			if strings.ContainsAny(qid, " \t\r\n") || strings.ContainsAny(e.DocID, " \t\r\n") {
				return errors.ValidationError(fmt.Sprintf("identifier in %s/%s contains whitespace", qid, e.DocID))
			}
			score := strconv.FormatFloat(e.Score, 'g', -1, 64)
			if _, err := fmt.Fprintf(bw, "%s %s %s %d %s %s\n", qid, placeholder, e.DocID, e.Rank, score, tag); err != nil {
				return errors.IOError("writing run", err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return errors.IOError("flushing run", err)
	}
	return nil
}

// Read decodes TREC run lines. Entries are re-ranked by score so the
// rank column only has to be a valid integer.
func Read(rd io.Reader, source string) (*Run, error) {
	r := New("")

	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 6 {
			return nil, errors.FormatError(source, lineNo, fmt.Sprintf("expected 6 fields, got %d", len(fields)))
		}

		if _, err := strconv.Atoi(fields[3]); err != nil {
			return nil, errors.FormatError(source, lineNo, fmt.Sprintf("rank %q is not an integer", fields[3]))
		}

		score, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, errors.FormatError(source, lineNo, fmt.Sprintf("score %q is not a number", fields[4]))
		}

		if r.Tag == "" {
			r.Tag = fields[5]
		}
		r.Add(fields[0], fields[2], score)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError("reading run "+source, err)
	}

	r.Rank()
	return r, nil
}
