// Package roster loads the participant allow-list and the assignment roster.
// The roster is a tabular file (CSV or XLSX) with one row per assigned
// (participant, full_type, abstract) triple; it is pivoted into the nested
// participant record once, at enrollment time.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// AssignmentRow is one roster row, header-addressed.
type AssignmentRow struct {
	ParticipantID string
	FullType      string
	AbstractID    string
	AbstractTitle string
	AbstractText  string
	HumanRef      string
	Terms         []string

	MainIdeaQuestion string
	MethodQuestion   string
	ResultQuestion   string

	// Five select-many triples; empty slices when the phase has none.
	SataPrompts [][2]string // key, prompt
	SataChoices [][]string
	SataCorrect [][]string

	Line int
}

// RowError describes one roster row that could not be used.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
}

// sataSlots is the fixed number of select-many questions per unit.
const sataSlots = 5

// LoadApprovedIDs reads the one-column allow list. IDs are lowercased; the
// membership check downstream is case-insensitive.
func LoadApprovedIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open approved ids file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	approved := make(map[string]bool)
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read approved ids file: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		id := strings.ToLower(strings.TrimSpace(record[0]))
		if id == "" {
			continue
		}
		// Tolerate a header row.
		if first && (id == "participant_id" || id == "prolific_id") {
			first = false
			continue
		}
		first = false
		approved[id] = true
	}
	return approved, nil
}

// LoadAssignments reads the roster from a CSV or XLSX file, keyed by header
// names. Malformed rows are returned as RowErrors rather than aborting the
// load; the caller decides whether to log or fail.
func LoadAssignments(path string) ([]AssignmentRow, []RowError, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("roster %s is empty", path)
	}

	header := headerIndex(rows[0])
	for _, required := range []string{"participant_id", "full_type", "abstract_id", "abstract_title", "abstract"} {
		if _, ok := header[required]; !ok {
			return nil, nil, fmt.Errorf("roster %s is missing required column %q", path, required)
		}
	}

	var (
		assignments []AssignmentRow
		rowErrs     []RowError
	)
	for i, record := range rows[1:] {
		line := i + 2
		row, perr := parseRow(header, record, line)
		if perr != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: perr.Error()})
			continue
		}
		assignments = append(assignments, row)
	}
	return assignments, rowErrs, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster csv: %w", err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func parseRow(header map[string]int, record []string, line int) (AssignmentRow, error) {
	get := func(col string) string {
		i, ok := header[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := AssignmentRow{
		ParticipantID: strings.ToLower(get("participant_id")),
		FullType:      get("full_type"),
		AbstractID:    get("abstract_id"),
		AbstractTitle: get("abstract_title"),
		AbstractText:  get("abstract"),
		HumanRef:      get("human_reference"),
		Terms:         splitList(get("terms")),

		MainIdeaQuestion: get("main_idea_question"),
		MethodQuestion:   get("method_question"),
		ResultQuestion:   get("result_question"),

		Line: line,
	}

	if row.ParticipantID == "" {
		return row, fmt.Errorf("missing participant_id")
	}
	if row.FullType == "" {
		return row, fmt.Errorf("missing full_type")
	}
	if row.AbstractID == "" {
		return row, fmt.Errorf("missing abstract_id")
	}
	if row.AbstractText == "" {
		return row, fmt.Errorf("missing abstract text")
	}

	for slot := 1; slot <= sataSlots; slot++ {
		prompt := get(fmt.Sprintf("sata_question_%d", slot))
		if prompt == "" {
			continue
		}
		choices := splitList(get(fmt.Sprintf("sata_choices_%d", slot)))
		correct := splitList(get(fmt.Sprintf("sata_correct_%d", slot)))
		if len(choices) == 0 {
			return row, fmt.Errorf("sata question %d has no choices", slot)
		}
		if len(correct) == 0 {
			return row, fmt.Errorf("sata question %d has no correct answers", slot)
		}
		for _, c := range correct {
			if !contains(choices, c) {
				return row, fmt.Errorf("sata question %d: correct answer %q not among choices", slot, c)
			}
		}
		row.SataPrompts = append(row.SataPrompts, [2]string{fmt.Sprintf("sata_%d", slot), prompt})
		row.SataChoices = append(row.SataChoices, choices)
		row.SataCorrect = append(row.SataCorrect, correct)
	}

	return row, nil
}

// splitList splits a semicolon-delimited cell into trimmed non-empty items.
func splitList(cell string) []string {
	if cell == "" {
		return nil
	}
	parts := strings.Split(cell, ";")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
