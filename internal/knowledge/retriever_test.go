package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byggpilot/byggpilot/internal/store"
)

type staticSource struct {
	snippets []store.KnowledgeSnippet
}

func (s *staticSource) ListSnippets(_ context.Context) ([]store.KnowledgeSnippet, error) {
	return s.snippets, nil
}

func testSnippets() []store.KnowledgeSnippet {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []store.KnowledgeSnippet{
		{
			ID:        "s1",
			Topic:     "ÄTA-arbeten enligt ABT 06",
			Content:   "Ändrings- och tilläggsarbeten ska beställas skriftligt innan arbetet påbörjas.",
			Keywords:  "äta, abt 06, tilläggsarbete, skriftlig beställning",
			CreatedAt: base,
		},
		{
			ID:        "s2",
			Topic:     "Omvänd byggmoms",
			Content:   "Vid försäljning av byggtjänster mellan byggföretag gäller omvänd skattskyldighet för moms.",
			Keywords:  "moms, omvänd byggmoms, fakturering",
			CreatedAt: base.Add(time.Hour),
		},
		{
			ID:        "s3",
			Topic:     "Garantitid",
			Content:   "Garantitiden för entreprenadarbeten är normalt fem år enligt AB 04.",
			Keywords:  "garanti, ab 04, besiktning",
			CreatedAt: base.Add(2 * time.Hour),
		},
	}
}

func TestRetriever_Search_RanksByOverlap(t *testing.T) {
	t.Parallel()

	r := NewRetriever(&staticSource{snippets: testSnippets()})

	results, err := r.Search(context.Background(), "hur fakturerar jag äta tilläggsarbete", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "s1", results[0].ID)
	assert.LessOrEqual(t, len(results), 2)
}

func TestRetriever_Search_NoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()

	r := NewRetriever(&staticSource{snippets: testSnippets()})

	results, err := r.Search(context.Background(), "zzz qqq", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_Search_EmptyQueryReturnsNothing(t *testing.T) {
	t.Parallel()

	r := NewRetriever(&staticSource{snippets: testSnippets()})

	results, err := r.Search(context.Background(), "  ", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTriggered(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "ata keyword", message: "Kunden vill lägga till en ÄTA på badrummet", want: true},
		{name: "regulation keyword", message: "what does BBR say about ventilation?", want: true},
		{name: "vat keyword", message: "Ska jag fakturera med omvänd byggmoms?", want: true},
		{name: "plain status question", message: "Hur går det med projektet på Storgatan?", want: false},
		{name: "empty", message: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Triggered(tt.message))
		})
	}
}
