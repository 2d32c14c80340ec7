// Package dataset reads labelled records and prepares them for training:
// normalization fitted on the training subset and the sampling strategies
// that pick that subset.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// LoadOptions describes the layout of a data file
type LoadOptions struct {
	Delimiter rune                 // Field delimiter, ',' when zero
	Features  int                  // Feature count per record, inferred from the first record when zero
	Mapping   *models.LabelMapping // Known classes
}

// LoadFile reads every record of a data file
func LoadFile(path string, opts LoadOptions) ([]models.DataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	records, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Load parses newline-delimited records: feature fields followed by the label text.
// Empty lines are skipped; header lines must be removed upstream.
func Load(r io.Reader, opts LoadOptions) ([]models.DataRecord, error) {
	if opts.Mapping == nil {
		return nil, fmt.Errorf("a label mapping is required")
	}

	reader := csv.NewReader(r)
	reader.Comma = ','
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	arity := opts.Features
	records := make([]models.DataRecord, 0)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if arity == 0 {
			arity = len(fields) - 1
			if arity < 1 {
				return nil, fmt.Errorf("line %d: a record needs at least one feature and a label", line)
			}
		}
		if len(fields) != arity+1 {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, arity+1, len(fields))
		}

		features := make([]float64, arity)
		for i := 0; i < arity; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: feature %d: %w", line, i, err)
			}
			features[i] = v
		}

		record, err := models.NewDataRecord(features, strings.TrimSpace(fields[arity]), opts.Mapping)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// GroupByLabel returns record indices per label id, in original order
func GroupByLabel(records []models.DataRecord) map[int][]int {
	groups := make(map[int][]int)
	for i, r := range records {
		groups[r.LabelID] = append(groups[r.LabelID], i)
	}
	return groups
}

// HeldOut returns the indices in [0, total) that are not in selected
func HeldOut(total int, selected []int) []int {
	used := make(map[int]struct{}, len(selected))
	for _, idx := range selected {
		used[idx] = struct{}{}
	}

	held := make([]int, 0, total)
	for i := 0; i < total; i++ {
		if _, ok := used[i]; !ok {
			held = append(held, i)
		}
	}
	return held
}
