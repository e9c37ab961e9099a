package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rohankatakam/defectset/internal/models"
)

// WriteCSV writes the header and one line per row in Columns order
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range t {
		it := r.Item
		record := []string{
			strconv.Itoa(r.Release),
			it.Name,
			strconv.Itoa(it.NumAuthors),
			strconv.Itoa(it.TouchingCommits),
			strconv.Itoa(it.Age),
			strconv.Itoa(it.Size),
			strconv.Itoa(it.BugFixes),
			strconv.Itoa(it.AddedLOC),
			strconv.Itoa(it.ChangeSetSize),
			strconv.Itoa(it.MaxChangeSetSize),
			strconv.Itoa(it.AvgChangeSetSize),
			r.Label(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file produced by WriteCSV. Numeric columns written with
// decimals by other tools are truncated to integers.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Columns {
		if header[i] != col {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i+1, col, header[i])
		}
	}

	var t Table
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t = append(t, row)
	}
	return t, nil
}

func parseRecord(record []string) (Row, error) {
	nums := make([]int, 0, 10)
	for i, field := range record {
		if i == 1 || i == len(record)-1 {
			continue
		}
		n, err := parseNumber(field)
		if err != nil {
			return Row{}, fmt.Errorf("%s: %w", Columns[i], err)
		}
		nums = append(nums, n)
	}

	var buggy bool
	switch record[len(record)-1] {
	case LabelYes:
		buggy = true
	case LabelNo:
	default:
		return Row{}, fmt.Errorf("Buggy: unexpected label %q", record[len(record)-1])
	}

	return Row{
		Release: nums[0],
		Item: &models.FileItem{
			Name:             record[1],
			NumAuthors:       nums[1],
			TouchingCommits:  nums[2],
			Age:              nums[3],
			Size:             nums[4],
			BugFixes:         nums[5],
			AddedLOC:         nums[6],
			ChangeSetSize:    nums[7],
			MaxChangeSetSize: nums[8],
			AvgChangeSetSize: nums[9],
			Buggy:            buggy,
		},
	}, nil
}

func parseNumber(field string) (int, error) {
	if n, err := strconv.Atoi(field); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
