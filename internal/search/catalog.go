package search

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"nyaymitra/client/internal/remote"
)

// featured is shown whenever the query is too short to search.
var featured = []remote.RightCard{
	{
		Title:    "Right Against Arbitrary Arrest",
		TitleHi:  "मनमानी गिरफ्तारी के खिलाफ अधिकार",
		Detail:   "Under Article 22 and BNS protocols, no person can be detained without being informed of the grounds for such arrest.",
		DetailHi: "अनुच्छेद 22 और बीएनएस प्रोटोकॉल के तहत, किसी भी व्यक्ति को गिरफ्तारी के आधार बताए बिना हिरासत में नहीं लिया जा सकता।",
		Type:     remote.CardInfo,
	},
	{
		Title:    "Protection from Double Jeopardy",
		TitleHi:  "दोहरे दंड से सुरक्षा",
		Detail:   "No person shall be prosecuted and punished for the same offense more than once (IPC Section 71 / BNS equivalent).",
		DetailHi: "किसी भी व्यक्ति को एक ही अपराध के लिए एक से अधिक बार अभियोजित और दंडित नहीं किया जाएगा।",
		Type:     remote.CardWarning,
	},
}

// Featured returns the built-in protections.
func Featured() []remote.RightCard {
	return append([]remote.RightCard{}, featured...)
}

// Index is a full-text store for rights cards.
type Index interface {
	Healthy() bool
	IndexCards(cards []remote.RightCard) error
	SearchCards(query string, limit int) ([]remote.RightCard, error)
}

// Catalog accumulates every rights card seen so they stay browsable offline.
// With an Index it prefers full-text search and falls back to a substring scan.
type Catalog struct {
	index Index

	mu    sync.RWMutex
	cards map[string]remote.RightCard
	order []string
}

// NewCatalog creates a catalog seeded with the featured protections. index
// may be nil.
func NewCatalog(index Index) *Catalog {
	c := &Catalog{index: index, cards: make(map[string]remote.RightCard)}
	c.remember(featured)
	if index != nil && index.Healthy() {
		if err := index.IndexCards(Featured()); err != nil {
			log.Printf("search: seed rights index: %v", err)
		}
	}
	return c
}

// Harvest records cards and indexes them in the background.
func (c *Catalog) Harvest(cards []remote.RightCard) {
	if len(cards) == 0 {
		return
	}
	c.remember(cards)

	if c.index == nil || !c.index.Healthy() {
		return
	}
	batch := append([]remote.RightCard{}, cards...)
	go func() {
		if err := c.index.IndexCards(batch); err != nil {
			log.Printf("search: index %d rights cards: %v", len(batch), err)
		}
	}()
}

// Lookup finds cards matching query. Queries of MinQueryRunes or fewer
// return the featured protections.
func (c *Catalog) Lookup(query string, limit int) []remote.RightCard {
	query = strings.TrimSpace(query)
	if len([]rune(query)) <= MinQueryRunes {
		return Featured()
	}
	if limit <= 0 {
		limit = 20
	}

	if c.index != nil && c.index.Healthy() {
		cards, err := c.index.SearchCards(query, limit)
		if err == nil {
			return nonNil(cards)
		}
		log.Printf("search: rights index error, falling back to memory scan: %v", err)
	}
	return c.scan(query, limit)
}

// Len reports how many distinct cards are known.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Catalog) remember(cards []remote.RightCard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, card := range cards {
		id := cardID(card)
		if id == "" {
			continue
		}
		if _, seen := c.cards[id]; !seen {
			c.order = append(c.order, id)
		}
		c.cards[id] = card
	}
}

func (c *Catalog) scan(query string, limit int) []remote.RightCard {
	needle := strings.ToLower(query)

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []remote.RightCard{}
	for _, id := range c.order {
		card := c.cards[id]
		haystack := strings.ToLower(strings.Join([]string{card.Title, card.TitleHi, card.Detail, card.DetailHi}, "\n"))
		if strings.Contains(haystack, needle) {
			out = append(out, card)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// cardID slugs the English title, falling back to the Hindi one. Meilisearch
// ids only allow ASCII alphanumerics, '-' and '_', so other letters are
// spelled as hex code points.
func cardID(card remote.RightCard) string {
	title := strings.TrimSpace(card.Title)
	if title == "" {
		title = strings.TrimSpace(card.TitleHi)
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r > unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsMark(r)):
			b.WriteString(strconv.FormatInt(int64(r), 16))
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func nonNil(cards []remote.RightCard) []remote.RightCard {
	if cards == nil {
		return []remote.RightCard{}
	}
	return cards
}
