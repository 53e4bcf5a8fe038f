package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentStartsPending(t *testing.T) {
	doc := NewDocument()
	require.NotEmpty(t, doc.ID)
	for _, stage := range Stages {
		assert.Equal(t, StatusPending, doc.Stages[stage])
	}
	assert.False(t, doc.Degraded())
}

func TestMarkStageIsMonotonic(t *testing.T) {
	doc := NewDocument()

	doc.markStage(StageAnalyze, StatusFailed)
	doc.markStage(StageAnalyze, StatusOK)
	assert.Equal(t, StatusFailed, doc.Stages[StageAnalyze], "failed never upgrades")

	doc.markStage(StageEnrich, StatusDegraded)
	doc.markStage(StageEnrich, StatusOK)
	assert.Equal(t, StatusDegraded, doc.Stages[StageEnrich], "degraded never upgrades to ok")

	doc.markStage(StageEnrich, StatusFailed)
	assert.Equal(t, StatusFailed, doc.Stages[StageEnrich], "degraded may worsen")
}

func TestFullTextJoinsElementsInOrder(t *testing.T) {
	doc := NewDocument()
	doc.Elements = []TextElement{
		{ID: "1", Text: "日本語"},
		{ID: "2", Text: "教育"},
	}
	doc.markStage(StageOCR, StatusOK)
	assert.Equal(t, "日本語 教育", doc.FullText())
}

func TestFullTextEmptyWhenOCRFailed(t *testing.T) {
	doc := NewDocument()
	doc.Elements = []TextElement{{ID: "1", Text: "日本語"}}
	doc.markStage(StageOCR, StatusFailed)
	assert.Empty(t, doc.FullText(), "a failed stage's output reads as empty")
}

func TestTokensForFiltersByElement(t *testing.T) {
	doc := NewDocument()
	doc.Tokens = []Token{
		{ID: "a", ElementID: "el-1", Surface: "日本"},
		{ID: "b", ElementID: "el-2", Surface: "語"},
		{ID: "c", ElementID: "el-1", Surface: "語"},
	}

	got := doc.TokensFor("el-1")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID, "creation order preserved")
}
