package service

import (
	"context"
	"fmt"
	"time"

	"plstudy/internal/generation"
	"plstudy/internal/models"
)

// fakeStore is an in-memory ParticipantStore. Writes mutate the held records
// the same way the document store would; failNext simulates a write failure
// on the next call.
type fakeStore struct {
	records  map[string]*models.ParticipantRecord
	failNext error
	writes   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.ParticipantRecord)}
}

func (f *fakeStore) fail() error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	return nil
}

func (f *fakeStore) unit(participantID string, loc models.UnitLocator) (*models.Unit, error) {
	rec, ok := f.records[participantID]
	if !ok {
		return nil, fmt.Errorf("no record for %s", participantID)
	}
	unit := rec.Unit(loc.Phase, loc.BatchID, loc.UnitID)
	if unit == nil {
		return nil, fmt.Errorf("no unit %s/%s/%s", loc.Phase, loc.BatchID, loc.UnitID)
	}
	return unit, nil
}

func (f *fakeStore) Find(ctx context.Context, participantID string) (*models.ParticipantRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.records[participantID], nil
}

func (f *fakeStore) Insert(ctx context.Context, rec *models.ParticipantRecord) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[rec.ParticipantID] = rec
	return nil
}

func (f *fakeStore) SetStage(ctx context.Context, participantID string, loc models.UnitLocator, stage models.Stage) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.Stage = stage
	f.writes = append(f.writes, "stage:"+string(stage))
	return nil
}

func (f *fakeStore) SetTermFamiliarity(ctx context.Context, participantID string, loc models.UnitLocator, terms []models.TermEntry) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.TermFamiliarity = terms
	f.writes = append(f.writes, "terms")
	return nil
}

func (f *fakeStore) SetStageSeconds(ctx context.Context, participantID string, loc models.UnitLocator, stage models.Stage, seconds float64) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	if unit.StageSeconds == nil {
		unit.StageSeconds = map[string]float64{}
	}
	unit.StageSeconds[string(stage)] = seconds
	return nil
}

func (f *fakeStore) AppendConversationTurn(ctx context.Context, participantID string, loc models.UnitLocator, turn models.ChatTurn) error {
	if err := f.fail(); err != nil {
		return err
	}
	if _, err := f.unit(participantID, loc); err != nil {
		return err
	}
	f.writes = append(f.writes, "turn:"+turn.Role)
	return nil
}

func (f *fakeStore) SetGeneratedSummary(ctx context.Context, participantID string, loc models.UnitLocator, summary string) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.GeneratedSummary = &summary
	f.writes = append(f.writes, "summary")
	return nil
}

func (f *fakeStore) SetShortAnswers(ctx context.Context, participantID string, loc models.UnitLocator, answers *models.ShortAnswerSet) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.ShortAnswers = answers
	f.writes = append(f.writes, "short_answers")
	return nil
}

func (f *fakeStore) SetSataAnswers(ctx context.Context, participantID string, loc models.UnitLocator, answers map[string]*models.SataAnswer) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.SataAnswers = answers
	f.writes = append(f.writes, "sata_answers")
	return nil
}

func (f *fakeStore) SetLikert(ctx context.Context, participantID string, loc models.UnitLocator, report *models.LikertReport) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.Likert = report
	f.writes = append(f.writes, "likert")
	return nil
}

func (f *fakeStore) SetUnitCompleted(ctx context.Context, participantID string, loc models.UnitLocator) error {
	if err := f.fail(); err != nil {
		return err
	}
	unit, err := f.unit(participantID, loc)
	if err != nil {
		return err
	}
	unit.Completed = true
	unit.Stage = models.StageCompleted
	f.writes = append(f.writes, "unit_completed")
	return nil
}

func (f *fakeStore) SetBatchCompleted(ctx context.Context, participantID, phase, batchID string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[participantID].Phases[phase].Batches[batchID].Completed = true
	f.writes = append(f.writes, "batch_completed:"+phase+"_"+batchID)
	return nil
}

func (f *fakeStore) SetPhaseCompleted(ctx context.Context, participantID, phase string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[participantID].Phases[phase].Completed = true
	f.writes = append(f.writes, "phase_completed:"+phase)
	return nil
}

func (f *fakeStore) SetBatchUnlocked(ctx context.Context, participantID, phase, batchID string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[participantID].Phases[phase].Batches[batchID].Unlocked = true
	f.writes = append(f.writes, "unlocked:"+phase+"_"+batchID)
	return nil
}

func (f *fakeStore) SetSeenInstructions(ctx context.Context, participantID, phase, batchID string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[participantID].Phases[phase].Batches[batchID].SeenInstructions = true
	return nil
}

func (f *fakeStore) SetBatchTimeReport(ctx context.Context, participantID, phase, batchID string, report *models.BatchTimeReport) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[participantID].Phases[phase].Batches[batchID].TimeCompletion = report
	return nil
}

func (f *fakeStore) SetConfirmedCompletion(ctx context.Context, participantID, phase, batchID string, confirmed bool) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.records[participantID].Phases[phase].Batches[batchID].ConfirmedCompletion = &confirmed
	return nil
}

func (f *fakeStore) SetResumePointer(ctx context.Context, participantID string, page, batch, unitID *string) error {
	if err := f.fail(); err != nil {
		return err
	}
	rec := f.records[participantID]
	rec.LastPage, rec.LastBatch, rec.LastUnitID = page, batch, unitID
	return nil
}

func (f *fakeStore) SetStudyCompleted(ctx context.Context, participantID string, at time.Time) error {
	if err := f.fail(); err != nil {
		return err
	}
	rec := f.records[participantID]
	rec.CompletedStudy = true
	rec.CompletedAt = &at
	f.writes = append(f.writes, "study_completed")
	return nil
}

func (f *fakeStore) ListAll(ctx context.Context) ([]models.ParticipantRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	var out []models.ParticipantRecord
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, nil
}

// fakeGenerator is a scripted Generator.
type fakeGenerator struct {
	reply      string
	summary    string
	err        error
	summarized []generation.SummaryRequest
}

func (g *fakeGenerator) Respond(ctx context.Context, abstract string, history []models.ChatTurn) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) Summarize(ctx context.Context, req generation.SummaryRequest) (string, error) {
	g.summarized = append(g.summarized, req)
	if g.err != nil {
		return "", g.err
	}
	return g.summary, nil
}

// fakeNotifier records completion notifications.
type fakeNotifier struct {
	notified []string
	err      error
}

func (n *fakeNotifier) NotifyStudyCompleted(ctx context.Context, participantID string) error {
	n.notified = append(n.notified, participantID)
	return n.err
}
