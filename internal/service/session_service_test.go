package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"plstudy/internal/models"
	"plstudy/internal/study"
)

func newSessionFixture(t *testing.T) (*SessionService, *fakeStore, *models.ParticipantRecord) {
	t.Helper()
	cfg := study.Default()
	store := newFakeStore()
	scheduler := NewSchedulerService(store, cfg)
	sessions := NewSessionService(store, scheduler, cfg, time.Hour)

	rec := newStudyRecord("p1")
	store.records["p1"] = rec
	return sessions, store, rec
}

func TestEnterFirstLogin(t *testing.T) {
	sessions, _, _ := newSessionFixture(t)

	ep, err := sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Enter() = %v", err)
	}
	if ep.Work == nil || ep.Work.FullType != "static_1" {
		t.Fatalf("Work = %+v, want static_1", ep.Work)
	}
	if ep.Unit == nil {
		t.Fatal("Unit = nil for unlocked, instructed batch")
	}
	if ep.Locator.UnitID != "1" {
		t.Errorf("landed on unit %q, want first unit 1", ep.Locator.UnitID)
	}
}

func TestEnterHonorsResumePointer(t *testing.T) {
	sessions, _, rec := newSessionFixture(t)

	page := "questions"
	batch := "static_1"
	unitID := "2"
	rec.LastPage, rec.LastBatch, rec.LastUnitID = &page, &batch, &unitID

	ep, err := sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Locator.UnitID != "2" {
		t.Errorf("landed on unit %q, want resumed unit 2", ep.Locator.UnitID)
	}
}

func TestEnterIgnoresStalePointer(t *testing.T) {
	sessions, _, rec := newSessionFixture(t)

	// Pointer names a completed unit; the first incomplete one wins.
	rec.Unit(models.PhaseStatic, "1", "1").Completed = true
	page := "questions"
	batch := "static_1"
	unitID := "1"
	rec.LastPage, rec.LastBatch, rec.LastUnitID = &page, &batch, &unitID

	ep, err := sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Locator.UnitID != "2" {
		t.Errorf("landed on unit %q, want next incomplete unit 2", ep.Locator.UnitID)
	}

	// Pointer from a different batch is also ignored.
	other := "interactive_3"
	rec.LastBatch = &other
	ep, err = sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Locator.UnitID != "2" {
		t.Errorf("landed on unit %q, want 2", ep.Locator.UnitID)
	}
}

func TestEnterRejectsCorruptStage(t *testing.T) {
	sessions, _, rec := newSessionFixture(t)
	rec.Unit("static", "1", "1").Stage = "reviewing"

	_, err := sessions.Enter(context.Background(), "p1")
	var iErr *IntegrityError
	if !errors.As(err, &iErr) {
		t.Fatalf("Enter() error = %v, want *IntegrityError for unknown persisted stage", err)
	}
}

func TestEnterLockedBatch(t *testing.T) {
	sessions, _, rec := newSessionFixture(t)

	// Finish static_1; interactive_3 is next but locked.
	batch := rec.Phases[models.PhaseStatic].Batches["1"]
	completeAllUnits(batch)
	batch.Completed = true

	ep, err := sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Work == nil || ep.Work.FullType != "interactive_3" {
		t.Fatalf("Work = %+v, want interactive_3", ep.Work)
	}
	if ep.Work.Unlocked {
		t.Error("interactive_3 reported unlocked")
	}
	if ep.Unit != nil {
		t.Error("locked batch exposed a unit")
	}
}

func TestEnterUnseenInstructions(t *testing.T) {
	sessions, _, rec := newSessionFixture(t)
	rec.Phases[models.PhaseStatic].Batches["1"].SeenInstructions = false

	ep, err := sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Unit != nil {
		t.Error("batch with unseen instructions exposed a unit")
	}

	if err := sessions.MarkInstructionsSeen(context.Background(), rec, models.PhaseStatic, "1"); err != nil {
		t.Fatal(err)
	}
	ep, err = sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Unit == nil {
		t.Error("unit still hidden after instructions were acknowledged")
	}
}

func TestEnterCompletedStudy(t *testing.T) {
	sessions, _, rec := newSessionFixture(t)
	for _, phase := range rec.Phases {
		for _, batch := range phase.Batches {
			completeAllUnits(batch)
			batch.Completed = true
		}
	}

	ep, err := sessions.Enter(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Work != nil || ep.Unit != nil {
		t.Errorf("finished study still yields work: %+v", ep.Work)
	}
}

func TestLeavePersistsPointer(t *testing.T) {
	sessions, store, rec := newSessionFixture(t)
	loc := models.UnitLocator{Phase: models.PhaseStatic, BatchID: "1", UnitID: "2"}

	if err := sessions.Leave(context.Background(), rec, loc, models.StageQuestions); err != nil {
		t.Fatal(err)
	}

	saved := store.records["p1"]
	if saved.LastPage == nil || *saved.LastPage != "questions" {
		t.Errorf("LastPage = %v, want questions", saved.LastPage)
	}
	if saved.LastBatch == nil || *saved.LastBatch != "static_1" {
		t.Errorf("LastBatch = %v, want static_1", saved.LastBatch)
	}
	if saved.LastUnitID == nil || *saved.LastUnitID != "2" {
		t.Errorf("LastUnitID = %v, want 2", saved.LastUnitID)
	}
}

func TestSessionLifecycle(t *testing.T) {
	sessions, _, _ := newSessionFixture(t)

	id := sessions.Create("p1")
	state := sessions.Get(id)
	if state == nil || state.ParticipantID != "p1" {
		t.Fatal("Create()/Get() did not round-trip")
	}
	if sessions.Get("unknown") != nil {
		t.Error("Get() returned state for unknown session")
	}

	sessions.Delete(id)
	if sessions.Get(id) != nil {
		t.Error("session survived Delete()")
	}
}

func TestCleanupExpired(t *testing.T) {
	cfg := study.Default()
	store := newFakeStore()
	scheduler := NewSchedulerService(store, cfg)
	sessions := NewSessionService(store, scheduler, cfg, time.Nanosecond)

	id := sessions.Create("p1")
	time.Sleep(time.Millisecond)
	sessions.CleanupExpired()
	if sessions.Get(id) != nil {
		t.Error("expired session survived cleanup")
	}
}

func TestSessionStateTimers(t *testing.T) {
	st := newSessionState("p1")

	st.NavigateTo("", 0)
	time.Sleep(2 * time.Millisecond)
	st.NavigateTo("main_idea", 1)
	time.Sleep(2 * time.Millisecond)
	st.NavigateTo("method", 0)
	time.Sleep(2 * time.Millisecond)

	times := st.FlushTimes("main_idea")
	if times["main_idea"] <= 0 {
		t.Error("main_idea time not accumulated")
	}
	if times["method"] <= 0 {
		t.Error("method time not accumulated")
	}
	// main_idea was visited twice; its total must cover both visits.
	if times["main_idea"] < times["method"] {
		t.Errorf("main_idea %.4fs < method %.4fs, want two visits accumulated", times["main_idea"], times["method"])
	}
}

func TestSessionStateDrafts(t *testing.T) {
	st := newSessionState("p1")

	st.SaveDraft("main_idea", "a partial answer")
	st.SaveSataDraft("sata_1", []string{"warming"})

	if st.Drafts()["main_idea"] != "a partial answer" {
		t.Error("free-text draft lost")
	}
	if got := st.SataDrafts()["sata_1"]; len(got) != 1 || got[0] != "warming" {
		t.Error("sata draft lost")
	}

	st.ResetUnit()
	if len(st.Drafts()) != 0 || len(st.SataDrafts()) != 0 {
		t.Error("ResetUnit() kept drafts")
	}
	if st.QuestionIndex() != 0 {
		t.Error("ResetUnit() kept question index")
	}
}
