package reports

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"trustlog/core/store"
)

func rec(id int64, category string, impacts ...string) store.RecordSummary {
	return store.RecordSummary{Record: store.Record{ID: id, Category: category, ImpactTypes: impacts}}
}

func TestSummarizeFirstSeenOrder(t *testing.T) {
	input := []store.RecordSummary{
		rec(1, "Other", "Emotional Impact"),
		rec(2, "Alcohol Use", "Safety Risk", "Emotional Impact"),
		rec(3, "Other", "Safety Risk"),
		rec(4, "Communication Breakdown", "Other"),
		rec(5, "Alcohol Use", "Other"),
	}
	s := Summarize(input)
	if s.Total != 5 {
		t.Fatalf("total=%d", s.Total)
	}
	wantKeys := []string{"Other", "Alcohol Use", "Communication Breakdown"}
	if !slices.Equal(s.CategoryCounts.Keys(), wantKeys) {
		t.Fatalf("keys=%v", s.CategoryCounts.Keys())
	}
	if !slices.Equal(s.Chart.Labels, wantKeys) || !slices.Equal(s.Chart.Values, []int{2, 2, 1}) {
		t.Fatalf("chart=%+v", s.Chart)
	}
	sum := 0
	for _, v := range s.Chart.Values {
		sum += v
	}
	if sum != s.Total {
		t.Fatalf("category counts sum %d != total %d", sum, s.Total)
	}
	if s.ImpactCounts.Get("Emotional Impact") != 2 || s.ImpactCounts.Keys()[0] != "Emotional Impact" {
		t.Fatalf("impact counts=%v", s.ImpactCounts.Keys())
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.CategoryCounts.Len() != 0 || len(s.Chart.Labels) != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"total":0,"category_counts":{},"chart":{"labels":[],"values":[]},"impact_counts":{}}` {
		t.Fatalf("unexpected json: %s", raw)
	}
}

func TestOrderedCountsJSONKeepsOrder(t *testing.T) {
	s := Summarize([]store.RecordSummary{rec(1, "Zeta"), rec(2, "Alpha"), rec(3, "Zeta")})
	raw, err := json.Marshal(s.CategoryCounts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"Zeta":2,"Alpha":1}` {
		t.Fatalf("unexpected json: %s", raw)
	}
}

func TestSummarizeSeq(t *testing.T) {
	ok := func(yield func(store.RecordSummary, error) bool) {
		for _, r := range []store.RecordSummary{rec(1, "A"), rec(2, "B")} {
			if !yield(r, nil) {
				return
			}
		}
	}
	s, err := SummarizeSeq(ok)
	if err != nil || s.Total != 2 {
		t.Fatalf("unexpected: %+v %v", s, err)
	}
	boom := errors.New("boom")
	failing := func(yield func(store.RecordSummary, error) bool) {
		yield(store.RecordSummary{}, boom)
	}
	if _, err := SummarizeSeq(failing); !errors.Is(err, boom) {
		t.Fatalf("expected error, got %v", err)
	}
}
