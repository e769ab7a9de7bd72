package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportService flattens the nested participant records into analysis
// tables, one row per response. The same tables back both the XLSX workbook
// and the per-table CSV files.
type ExportService struct {
	store ParticipantStore
}

// NewExportService creates a new export service
func NewExportService(store ParticipantStore) *ExportService {
	return &ExportService{store: store}
}

// table is a header row plus data rows.
type table struct {
	name   string
	header []string
	rows   [][]string
}

func (s *ExportService) buildTables(ctx context.Context) ([]table, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	participants := table{
		name:   "participants",
		header: []string{"participant_id", "created_at", "accepted_terms", "completed_study", "completed_at", "last_page", "last_batch"},
	}
	shortAnswers := table{
		name:   "short_answers",
		header: []string{"participant_id", "full_type", "abstract_id", "question", "answer", "time_seconds", "submitted_at"},
	}
	sataAnswers := table{
		name:   "sata_answers",
		header: []string{"participant_id", "full_type", "abstract_id", "question", "selected", "time_seconds"},
	}
	comparisons := table{
		name:   "comparisons",
		header: []string{"participant_id", "full_type", "abstract_id", "scale", "score", "time_spent_seconds", "timestamp"},
	}
	conversations := table{
		name:   "conversations",
		header: []string{"participant_id", "full_type", "abstract_id", "turn", "role", "content", "timestamp"},
	}
	terms := table{
		name:   "terms",
		header: []string{"participant_id", "full_type", "abstract_id", "term", "familiarity_score", "extra_information"},
	}
	batchReports := table{
		name:   "batch_reports",
		header: []string{"participant_id", "full_type", "batch_time_seconds", "sata_time_seconds", "feedback", "confirmed_completion"},
	}

	for _, rec := range records {
		participants.rows = append(participants.rows, []string{
			rec.ParticipantID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			strconv.FormatBool(rec.AcceptedTerms),
			strconv.FormatBool(rec.CompletedStudy),
			formatTimePtr(rec.CompletedAt),
			derefString(rec.LastPage),
			derefString(rec.LastBatch),
		})

		for _, phase := range sortedKeys(rec.Phases) {
			for _, batchID := range sortedKeys(rec.Phases[phase].Batches) {
				batch := rec.Phases[phase].Batches[batchID]
				fullType := phase + "_" + batchID

				if batch.TimeCompletion != nil {
					batchReports.rows = append(batchReports.rows, []string{
						rec.ParticipantID,
						fullType,
						formatSeconds(batch.TimeCompletion.BatchTimeSeconds),
						formatSeconds(batch.TimeCompletion.SataTimeSeconds),
						batch.TimeCompletion.Feedback,
						formatBoolPtr(batch.ConfirmedCompletion),
					})
				}

				for _, unitID := range batch.OrderedUnitIDs() {
					unit := batch.Abstracts[unitID]

					for _, entry := range unit.TermFamiliarity {
						terms.rows = append(terms.rows, []string{
							rec.ParticipantID, fullType, unitID,
							entry.Term,
							formatIntPtr(entry.FamiliarityScore),
							strings.Join(entry.ExtraInformation, ";"),
						})
					}

					for i, turn := range unit.ConversationLog {
						conversations.rows = append(conversations.rows, []string{
							rec.ParticipantID, fullType, unitID,
							strconv.Itoa(i),
							turn.Role,
							turn.Content,
							turn.Timestamp.Format("2006-01-02 15:04:05"),
						})
					}

					if sa := unit.ShortAnswers; sa != nil {
						submitted := sa.SubmittedAt.Format("2006-01-02 15:04:05")
						shortAnswers.rows = append(shortAnswers.rows,
							[]string{rec.ParticipantID, fullType, unitID, "main_idea", sa.MainIdea, formatSeconds(sa.TimeMainIdea), submitted},
							[]string{rec.ParticipantID, fullType, unitID, "method", sa.Method, formatSeconds(sa.TimeMethod), submitted},
							[]string{rec.ParticipantID, fullType, unitID, "result", sa.Result, formatSeconds(sa.TimeResult), submitted},
						)
					}

					for _, key := range sortedKeys(unit.SataAnswers) {
						ans := unit.SataAnswers[key]
						sataAnswers.rows = append(sataAnswers.rows, []string{
							rec.ParticipantID, fullType, unitID,
							key,
							strings.Join(ans.Selected, ";"),
							formatSeconds(ans.TimeSeconds),
						})
					}

					if unit.Likert != nil {
						for _, scale := range sortedKeys(unit.Likert.Responses) {
							comparisons.rows = append(comparisons.rows, []string{
								rec.ParticipantID, fullType, unitID,
								scale,
								strconv.Itoa(unit.Likert.Responses[scale]),
								formatSeconds(unit.Likert.TimeSpentSeconds),
								unit.Likert.Timestamp.Format("2006-01-02 15:04:05"),
							})
						}
					}
				}
			}
		}
	}

	return []table{participants, shortAnswers, sataAnswers, comparisons, conversations, terms, batchReports}, nil
}

// ExportXLSX writes every table as a sheet of a single workbook.
func (s *ExportService) ExportXLSX(ctx context.Context, path string) error {
	tables, err := s.buildTables(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			f.SetSheetName("Sheet1", t.name)
		} else {
			if _, err := f.NewSheet(t.name); err != nil {
				return fmt.Errorf("failed to create sheet %s: %w", t.name, err)
			}
		}
		if err := writeSheet(f, t); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t table) error {
	all := append([][]string{t.header}, t.rows...)
	for rowIdx, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := f.SetSheetRow(t.name, cell, &values); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", t.name, err)
		}
	}
	return nil
}

// ExportCSV writes every table as <dir>/<table>.csv.
func (s *ExportService) ExportCSV(ctx context.Context, dir string) error {
	tables, err := s.buildTables(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, t := range tables {
		if err := writeCSV(filepath.Join(dir, t.name+".csv"), t); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, t table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	for _, row := range t.rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatBoolPtr(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func formatIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
