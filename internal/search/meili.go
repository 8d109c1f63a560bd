package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"nyaymitra/client/internal/remote"
)

const idxRights = "nyaymitra_rights"

type rightDocument struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TitleHi    string `json:"titleHi"`
	Detail     string `json:"detail"`
	DetailHi   string `json:"detailHi"`
	Type       string `json:"type"`
	Timeline   string `json:"timeline,omitempty"`
	TimelineHi string `json:"timeline_hi,omitempty"`
}

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the rights index.
// An unreachable server is not an error: the index reports unhealthy and the
// health monitor picks it up once it appears.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxRights,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxRights, err)
	}

	index := m.client.Index(idxRights)
	filterable := []interface{}{"type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxRights, err)
	}
	searchable := []string{"title", "titleHi", "detail", "detailHi"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxRights, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring rights index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexCards adds or updates cards in the rights index.
func (m *Meili) IndexCards(cards []remote.RightCard) error {
	docs := make([]rightDocument, 0, len(cards))
	for _, card := range cards {
		id := cardID(card)
		if id == "" {
			continue
		}
		docs = append(docs, rightDocument{
			ID:         id,
			Title:      card.Title,
			TitleHi:    card.TitleHi,
			Detail:     card.Detail,
			DetailHi:   card.DetailHi,
			Type:       string(card.Type),
			Timeline:   card.Timeline,
			TimelineHi: card.TimelineHi,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRights).AddDocuments(docs, nil)
	return err
}

// SearchCards runs a full-text query against the rights index.
func (m *Meili) SearchCards(query string, limit int) ([]remote.RightCard, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.Index(idxRights).Search(query, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	cards := make([]remote.RightCard, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		cards = append(cards, hitToCard(hit))
	}
	return cards, nil
}

func hitToCard(hit meili.Hit) remote.RightCard {
	return remote.RightCard{
		Title:      decodeString(hit, "title"),
		TitleHi:    decodeString(hit, "titleHi"),
		Detail:     decodeString(hit, "detail"),
		DetailHi:   decodeString(hit, "detailHi"),
		Type:       remote.CardType(decodeString(hit, "type")),
		Timeline:   decodeString(hit, "timeline"),
		TimelineHi: decodeString(hit, "timeline_hi"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
