package search

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"nyaymitra/client/internal/remote"
)

type fakeIndex struct {
	mu      sync.Mutex
	healthy bool
	indexed []remote.RightCard
	hits    []remote.RightCard
	err     error
	queries []string
}

func (f *fakeIndex) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeIndex) IndexCards(cards []remote.RightCard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, cards...)
	return nil
}

func (f *fakeIndex) SearchCards(query string, limit int) ([]remote.RightCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeIndex) indexedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func TestFeaturedProtections(t *testing.T) {
	cards := Featured()
	if len(cards) != 2 {
		t.Fatalf("featured = %d cards, want 2", len(cards))
	}
	if cards[0].Title != "Right Against Arbitrary Arrest" || cards[0].Type != remote.CardInfo {
		t.Errorf("first card = %+v", cards[0])
	}
	if !strings.Contains(cards[0].Detail, "Article 22") {
		t.Errorf("first card detail = %q", cards[0].Detail)
	}
	if cards[1].Title != "Protection from Double Jeopardy" || cards[1].Type != remote.CardWarning {
		t.Errorf("second card = %+v", cards[1])
	}
	for _, c := range cards {
		if c.TitleHi == "" || c.DetailHi == "" {
			t.Errorf("card %q lacks Hindi text", c.Title)
		}
	}

	cards[0].Title = "mutated"
	if Featured()[0].Title == "mutated" {
		t.Error("Featured() exposes shared state")
	}
}

func TestLookupShortQueryReturnsFeatured(t *testing.T) {
	c := NewCatalog(nil)
	for _, q := range []string{"", "a", "ab", "  ab  "} {
		if got := c.Lookup(q, 10); len(got) != 2 {
			t.Errorf("Lookup(%q) = %d cards, want featured", q, len(got))
		}
	}
}

func TestLookupScansHarvestedCards(t *testing.T) {
	c := NewCatalog(nil)
	c.Harvest([]remote.RightCard{
		{Title: "Right to Bail", Detail: "Bailable offences", Type: remote.CardInfo},
		{Title: "Right to Legal Aid", DetailHi: "मुफ्त कानूनी सहायता", Type: remote.CardInfo},
	})
	c.Harvest([]remote.RightCard{{Title: "Right to Bail", Detail: "Updated", Type: remote.CardInfo}})

	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}

	got := c.Lookup("BAIL", 10)
	if len(got) != 1 || got[0].Detail != "Updated" {
		t.Errorf("Lookup(BAIL) = %+v", got)
	}
	if got := c.Lookup("कानूनी", 10); len(got) != 1 || got[0].Title != "Right to Legal Aid" {
		t.Errorf("Hindi lookup = %+v", got)
	}
	if got := c.Lookup("right", 1); len(got) != 1 {
		t.Errorf("limit not applied: %d cards", len(got))
	}
	if got := c.Lookup("nothing matches", 10); got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty slice", got)
	}
}

func TestLookupPrefersHealthyIndex(t *testing.T) {
	idx := &fakeIndex{healthy: true, hits: []remote.RightCard{{Title: "From index"}}}
	c := NewCatalog(idx)

	if idx.indexedCount() != 2 {
		t.Errorf("featured cards indexed = %d, want 2", idx.indexedCount())
	}
	got := c.Lookup("arrest", 5)
	if len(got) != 1 || got[0].Title != "From index" {
		t.Errorf("Lookup = %+v", got)
	}
}

func TestLookupFallsBackWhenIndexFails(t *testing.T) {
	idx := &fakeIndex{healthy: true, err: errors.New("boom")}
	c := NewCatalog(idx)

	got := c.Lookup("jeopardy", 5)
	if len(got) != 1 || got[0].Title != "Protection from Double Jeopardy" {
		t.Errorf("Lookup = %+v", got)
	}

	idx.mu.Lock()
	idx.healthy = false
	idx.mu.Unlock()
	got = c.Lookup("arrest", 5)
	if len(got) != 1 || len(idx.queries) != 1 {
		t.Errorf("unhealthy index was queried: %v", idx.queries)
	}
}

func TestHarvestIndexesInBackground(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	c := NewCatalog(idx)

	c.Harvest([]remote.RightCard{{Title: "Right to Silence"}})

	deadline := time.Now().Add(2 * time.Second)
	for idx.indexedCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("indexed = %d, want 3", idx.indexedCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCardID(t *testing.T) {
	tests := []struct {
		card remote.RightCard
		want string
	}{
		{remote.RightCard{Title: "Right Against Arbitrary Arrest"}, "right-against-arbitrary-arrest"},
		{remote.RightCard{Title: "  Section 41A / CrPC!  "}, "section-41a-crpc"},
		{remote.RightCard{TitleHi: "दंड"}, "926902921"},
		{remote.RightCard{}, ""},
	}
	for _, tt := range tests {
		if got := cardID(tt.card); got != tt.want {
			t.Errorf("cardID(%+v) = %q, want %q", tt.card, got, tt.want)
		}
	}
}
