package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/periop/periop/internal/domain/analysis"
	"github.com/periop/periop/internal/domain/evidence"
	"github.com/periop/periop/internal/domain/extract"
	"github.com/periop/periop/internal/domain/risk"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSession(id string, at time.Time) *analysis.Session {
	age := 5.0
	return &analysis.Session{
		ID:              id,
		CreatedAt:       at,
		HPIText:         "5 year old male for tonsillectomy, recent URI 1 week ago",
		EvidenceVersion: "v2025.01",
		Status:          analysis.StatusPartialSuccess,
		DurationMS:      42,
		Result: &analysis.Result{
			SessionID: id,
			Demographics: extract.Demographics{
				AgeYears: &age,
				AgeBand:  extract.Band1To5,
				Sex:      extract.SexMale,
				Urgency:  extract.UrgencyElective,
			},
			Factors: []extract.Factor{
				{Token: "RECENT_URI_2W", PlainLabel: "recent upper respiratory infection", Confidence: 0.85},
			},
			Risks: []*risk.Assessment{
				{
					Outcome:      "LARYNGOSPASM",
					BaselineRisk: 0.0195,
					AdjustedRisk: 0.125,
					RiskRatio:    6.4,
					Level:        risk.LevelHigh,
					Grade:        evidence.GradeB,
				},
				{Outcome: "ASPIRATION", NoEvidence: true},
			},
			EvidenceVersion: "v2025.01",
			Status:          analysis.StatusPartialSuccess,
		},
	}
}

func timedOutSession(id string, at time.Time) *analysis.Session {
	return &analysis.Session{
		ID:              id,
		CreatedAt:       at,
		HPIText:         "healthy adult for hernia repair",
		EvidenceVersion: "v2025.01",
		Status:          analysis.StatusPartialSuccess,
		Warnings:        []string{"TIMEOUT: analysis budget exceeded, results truncated"},
		DurationMS:      5001,
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, store analysis.SessionStore)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestSQLite(t))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func TestAppendAndRecentNewestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, store analysis.SessionStore) {
		ctx := context.Background()
		base := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

		first := sampleSession("s-1", base)
		second := timedOutSession("s-2", base.Add(5*time.Minute))
		third := sampleSession("s-3", base.Add(10*time.Minute))
		for _, s := range []*analysis.Session{first, second, third} {
			if err := store.Append(ctx, s); err != nil {
				t.Fatalf("Append(%s): %v", s.ID, err)
			}
		}

		got, err := store.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Recent returned %d sessions, want 2", len(got))
		}
		if got[0].ID != "s-3" || got[1].ID != "s-2" {
			t.Fatalf("Recent order = [%s, %s], want [s-3, s-2]", got[0].ID, got[1].ID)
		}

		if !got[0].CreatedAt.Equal(third.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, third.CreatedAt)
		}
		if got[0].DurationMS != 42 {
			t.Errorf("DurationMS = %d, want 42", got[0].DurationMS)
		}
		res := got[0].Result
		if res == nil {
			t.Fatal("round-trip dropped the result")
		}
		if res.Demographics.AgeYears == nil || *res.Demographics.AgeYears != 5.0 {
			t.Errorf("AgeYears = %v, want 5", res.Demographics.AgeYears)
		}
		if len(res.Factors) != 1 || res.Factors[0].Token != "RECENT_URI_2W" {
			t.Errorf("Factors = %+v, want one RECENT_URI_2W", res.Factors)
		}
		if len(res.Risks) != 2 || res.Risks[0].Outcome != "LARYNGOSPASM" {
			t.Fatalf("Risks = %+v, want LARYNGOSPASM then ASPIRATION", res.Risks)
		}
		if res.Risks[0].AdjustedRisk != 0.125 || res.Risks[0].Grade != evidence.GradeB {
			t.Errorf("LARYNGOSPASM round-trip = %+v", res.Risks[0])
		}
		if !res.Risks[1].NoEvidence {
			t.Error("ASPIRATION lost its no_evidence flag")
		}

		if len(got[1].Warnings) != 1 || got[1].Warnings[0] != "TIMEOUT: analysis budget exceeded, results truncated" {
			t.Errorf("Warnings = %v", got[1].Warnings)
		}
		if got[1].Result != nil {
			t.Errorf("timed-out session gained a result: %+v", got[1].Result)
		}
	})
}

func TestRecentDefaultLimit(t *testing.T) {
	eachStore(t, func(t *testing.T, store analysis.SessionStore) {
		ctx := context.Background()
		at := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
		for i := 0; i < defaultRecent+5; i++ {
			s := sampleSession(string(rune('a'+i))+"-session", at.Add(time.Duration(i)*time.Minute))
			if err := store.Append(ctx, s); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		got, err := store.Recent(ctx, 0)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != defaultRecent {
			t.Fatalf("Recent(0) returned %d sessions, want %d", len(got), defaultRecent)
		}
	})
}

func TestRecentEmptyStore(t *testing.T) {
	eachStore(t, func(t *testing.T, store analysis.SessionStore) {
		got, err := store.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("Recent on empty store returned %d sessions", len(got))
		}
	})
}

func TestRecentReturnsCopies(t *testing.T) {
	eachStore(t, func(t *testing.T, store analysis.SessionStore) {
		ctx := context.Background()
		if err := store.Append(ctx, sampleSession("s-1", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))); err != nil {
			t.Fatalf("Append: %v", err)
		}
		first, err := store.Recent(ctx, 1)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		first[0].Status = "TAMPERED"
		first[0].Result.Risks[0].AdjustedRisk = 0.99

		second, err := store.Recent(ctx, 1)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if second[0].Status != analysis.StatusPartialSuccess {
			t.Errorf("stored status mutated to %q", second[0].Status)
		}
		if second[0].Result.Risks[0].AdjustedRisk != 0.125 {
			t.Errorf("stored assessment mutated to %v", second[0].Result.Risks[0].AdjustedRisk)
		}
	})
}

func TestSQLiteRejectsDuplicateID(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	s := sampleSession("dup-1", time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Append(ctx, s); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := store.Append(ctx, s); err == nil {
		t.Fatal("second Append with the same ID succeeded, want primary key error")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Append(ctx, sampleSession("s-1", time.Date(2025, 5, 1, 7, 30, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent after reopen: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s-1" {
		t.Fatalf("Recent after reopen = %+v, want the persisted session", got)
	}
	if got[0].Result == nil || len(got[0].Result.Risks) != 2 {
		t.Fatalf("persisted result did not survive reopen: %+v", got[0].Result)
	}
}
