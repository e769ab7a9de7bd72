package models

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestVariantStages(t *testing.T) {
	tests := []struct {
		name    string
		variant PipelineVariant
		want    []Stage
	}{
		{
			name:    "vocabulary pipeline",
			variant: VariantVocabulary,
			want:    []Stage{StageFamiliarity, StageExtraInfo, StageQuestions, StageComparison, StageCompleted},
		},
		{
			name:    "conversational pipeline",
			variant: VariantConversational,
			want:    []Stage{StageConversation, StageGenerating, StageQuestions, StageComparison, StageCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.variant.Stages()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Stages() = %v, want %v", got, tt.want)
			}
			if tt.variant.Initial() != tt.want[0] {
				t.Errorf("Initial() = %v, want %v", tt.variant.Initial(), tt.want[0])
			}
		})
	}
}

func TestNextStage(t *testing.T) {
	tests := []struct {
		name    string
		variant PipelineVariant
		from    Stage
		want    Stage
		wantErr bool
	}{
		{
			name:    "familiarity advances to extra info",
			variant: VariantVocabulary,
			from:    StageFamiliarity,
			want:    StageExtraInfo,
		},
		{
			name:    "extra info advances to questions",
			variant: VariantVocabulary,
			from:    StageExtraInfo,
			want:    StageQuestions,
		},
		{
			name:    "conversation advances to generating",
			variant: VariantConversational,
			from:    StageConversation,
			want:    StageGenerating,
		},
		{
			name:    "completed is terminal",
			variant: VariantVocabulary,
			from:    StageCompleted,
			wantErr: true,
		},
		{
			name:    "conversation not in vocabulary pipeline",
			variant: VariantVocabulary,
			from:    StageConversation,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStage(tt.variant, tt.from)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NextStage(%s, %s) error = %v, wantErr %v", tt.variant, tt.from, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NextStage(%s, %s) = %v, want %v", tt.variant, tt.from, got, tt.want)
			}
		})
	}
}

func TestSplitFullType(t *testing.T) {
	tests := []struct {
		name      string
		fullType  string
		wantPhase string
		wantBatch string
		wantErr   bool
	}{
		{
			name:      "interactive batch",
			fullType:  "interactive_3",
			wantPhase: "interactive",
			wantBatch: "3",
		},
		{
			name:      "static batch",
			fullType:  "static_1",
			wantPhase: "static",
			wantBatch: "1",
		},
		{
			name:     "unknown phase",
			fullType: "pilot_1",
			wantErr:  true,
		},
		{
			name:     "no separator",
			fullType: "static",
			wantErr:  true,
		},
		{
			name:     "trailing separator",
			fullType: "static_",
			wantErr:  true,
		},
		{
			name:     "empty",
			fullType: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, batch, err := SplitFullType(tt.fullType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitFullType(%q) error = %v, wantErr %v", tt.fullType, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if phase != tt.wantPhase || batch != tt.wantBatch {
				t.Errorf("SplitFullType(%q) = (%q, %q), want (%q, %q)", tt.fullType, phase, batch, tt.wantPhase, tt.wantBatch)
			}
			if FullType(phase, batch) != tt.fullType {
				t.Errorf("FullType(%q, %q) did not round-trip to %q", phase, batch, tt.fullType)
			}
		})
	}
}

func TestOrderedUnitIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{
			name: "numeric ids sort numerically",
			ids:  []string{"10", "2", "1"},
			want: []string{"1", "2", "10"},
		},
		{
			name: "mixed ids sort lexically",
			ids:  []string{"b", "10", "a"},
			want: []string{"10", "a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &Batch{Abstracts: map[string]*Unit{}}
			for _, id := range tt.ids {
				batch.Abstracts[id] = &Unit{}
			}
			if got := batch.OrderedUnitIDs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("OrderedUnitIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextIncompleteUnit(t *testing.T) {
	batch := &Batch{Abstracts: map[string]*Unit{
		"1": {Completed: true},
		"2": {Completed: false},
		"3": {Completed: false},
	}}

	id, unit := batch.NextIncompleteUnit()
	if id != "2" || unit == nil {
		t.Fatalf("NextIncompleteUnit() = %q, want %q", id, "2")
	}

	batch.Abstracts["2"].Completed = true
	batch.Abstracts["3"].Completed = true
	if id, unit := batch.NextIncompleteUnit(); id != "" || unit != nil {
		t.Errorf("NextIncompleteUnit() on finished batch = %q, want empty", id)
	}
	if !batch.AllUnitsCompleted() {
		t.Error("AllUnitsCompleted() = false after completing every unit")
	}
}

func TestUnitConversationHelpers(t *testing.T) {
	unit := &Unit{ConversationLog: []ChatTurn{
		{Role: "user", Content: "what is CRISPR?"},
		{Role: "assistant", Content: "a gene editing tool"},
		{Role: "user", Content: "is it safe?"},
	}}

	if got := unit.UserTurnCount(); got != 2 {
		t.Errorf("UserTurnCount() = %d, want 2", got)
	}
	want := []string{"what is CRISPR?", "is it safe?"}
	if got := unit.UserTurns(); !reflect.DeepEqual(got, want) {
		t.Errorf("UserTurns() = %v, want %v", got, want)
	}
}

func TestSummaryText(t *testing.T) {
	generated := "a generated summary"
	blank := "   "
	tests := []struct {
		name string
		unit Unit
		want string
	}{
		{
			name: "prefers generated summary",
			unit: Unit{GeneratedSummary: &generated, HumanReference: "reference"},
			want: "a generated summary",
		},
		{
			name: "falls back to reference when absent",
			unit: Unit{HumanReference: "reference"},
			want: "reference",
		},
		{
			name: "falls back to reference when blank",
			unit: Unit{GeneratedSummary: &blank, HumanReference: "reference"},
			want: "reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.unit.SummaryText(); got != tt.want {
				t.Errorf("SummaryText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordResolvers(t *testing.T) {
	rec := &ParticipantRecord{Phases: map[string]*Phase{
		"static": {Batches: map[string]*Batch{
			"1": {Abstracts: map[string]*Unit{"1": {AbstractTitle: "t"}}},
		}},
	}}

	if rec.Batch("static", "1") == nil {
		t.Error("Batch() returned nil for assigned batch")
	}
	if rec.Batch("static", "2") != nil {
		t.Error("Batch() returned non-nil for unassigned batch")
	}
	if rec.Batch("interactive", "1") != nil {
		t.Error("Batch() returned non-nil for unassigned phase")
	}
	if rec.Unit("static", "1", "1") == nil {
		t.Error("Unit() returned nil for assigned unit")
	}
	if rec.Unit("static", "1", "9") != nil {
		t.Error("Unit() returned non-nil for missing unit")
	}
}

func TestRecordBsonRoundTrip(t *testing.T) {
	score := 4
	rec := &ParticipantRecord{
		ParticipantID: "p1",
		AcceptedTerms: true,
		Phases: map[string]*Phase{
			"static": {Batches: map[string]*Batch{
				"1": {
					Unlocked:         true,
					SeenInstructions: true,
					Abstracts: map[string]*Unit{
						"1": {
							AbstractTitle: "Plasmid vectors",
							AbstractText:  "Abstract text.",
							TermFamiliarity: []TermEntry{
								{Term: "plasmid", FamiliarityScore: &score, ExtraInformation: []string{ExtraInfoDefinition}},
								{Term: "vector"},
								{Term: "ligase"},
							},
							ConversationLog: []ChatTurn{
								{Role: "user", Content: "What is a plasmid?"},
								{Role: "assistant", Content: "A small circular DNA molecule."},
							},
							Stage: StageExtraInfo,
						},
					},
				},
			}},
		},
	}

	raw, err := bson.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got ParticipantRecord
	if err := bson.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	unit := got.Unit("static", "1", "1")
	if unit == nil {
		t.Fatal("unit lost in round trip")
	}
	if len(unit.TermFamiliarity) != 3 {
		t.Fatalf("term count = %d, want 3", len(unit.TermFamiliarity))
	}
	for i, want := range []string{"plasmid", "vector", "ligase"} {
		if unit.TermFamiliarity[i].Term != want {
			t.Errorf("term[%d] = %q, want %q", i, unit.TermFamiliarity[i].Term, want)
		}
	}
	if unit.TermFamiliarity[0].FamiliarityScore == nil || *unit.TermFamiliarity[0].FamiliarityScore != 4 {
		t.Error("familiarity score lost in round trip")
	}
	if unit.TermFamiliarity[1].FamiliarityScore != nil {
		t.Error("unrated term gained a score in round trip")
	}
	if len(unit.ConversationLog) != 2 || unit.ConversationLog[0].Role != "user" || unit.ConversationLog[1].Role != "assistant" {
		t.Errorf("conversation log order not preserved: %+v", unit.ConversationLog)
	}
	if unit.Stage != StageExtraInfo {
		t.Errorf("stage = %q, want %q", unit.Stage, StageExtraInfo)
	}
}
