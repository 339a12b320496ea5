package service

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestRejectsEmptyDocument(t *testing.T) {
	svc := NewDocumentService()

	for _, raw := range []string{"", "   ", "\n\n\n"} {
		_, err := svc.Ingest(raw, model.Metadata{})
		require.Error(t, err)
		assert.Equal(t, apperr.KindMalformedDocument, apperr.KindOf(err))
	}
}

func TestIngestSegmentsByHeadings(t *testing.T) {
	raw := "# 项目背景\n这是背景描述。\n\n# 实施方案\n这是方案描述。\n"
	svc := NewDocumentService()

	doc, err := svc.Ingest(raw, model.Metadata{Title: "测试方案"})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)

	assert.Equal(t, "项目背景", doc.Sections[0].Heading)
	assert.Equal(t, "这是背景描述。", doc.Sections[0].Text)
	assert.Equal(t, "实施方案", doc.Sections[1].Heading)
	assert.Equal(t, "测试方案", doc.Meta.Title)
}

func TestIngestKeepsPreamble(t *testing.T) {
	raw := "这是标题之前的引言。\n\n# 第一章\n正文。\n"
	svc := NewDocumentService()

	doc, err := svc.Ingest(raw, model.Metadata{})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "", doc.Sections[0].Heading)
	assert.Equal(t, "这是标题之前的引言。", doc.Sections[0].Text)
}

func TestIngestNumberedHeadings(t *testing.T) {
	raw := "1. 总体目标\n目标正文。\n2.1 阶段划分\n阶段正文。\n"
	svc := NewDocumentService()

	doc, err := svc.Ingest(raw, model.Metadata{})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "1. 总体目标", doc.Sections[0].Heading)
}

func TestIngestSegmentsByParagraphs(t *testing.T) {
	raw := "第一段内容。\n\n第二段内容。\n\n\n第三段内容。"
	svc := NewDocumentService()

	doc, err := svc.Ingest(raw, model.Metadata{})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 3)
	assert.Equal(t, "第一段内容。", doc.Sections[0].Text)
	assert.Equal(t, "第三段内容。", doc.Sections[2].Text)
}

func TestSectionOffsetsCoverOriginal(t *testing.T) {
	raw := "第一段内容。\n\n第二段内容。"
	svc := NewDocumentService()

	doc, err := svc.Ingest(raw, model.Metadata{})
	require.NoError(t, err)

	for _, s := range doc.Sections {
		assert.GreaterOrEqual(t, s.Start, 0)
		assert.LessOrEqual(t, s.End, len(raw))
		assert.Less(t, s.Start, s.End)
		// 偏移量切出的原文包含该章节正文
		assert.Contains(t, raw[s.Start:s.End], strings.TrimSpace(s.Text))
	}
}

func TestGetReturnsIngestedDocument(t *testing.T) {
	svc := NewDocumentService()

	doc, err := svc.Ingest("一段正文。", model.Metadata{})
	require.NoError(t, err)

	got, ok := svc.Get(doc.ID)
	assert.True(t, ok)
	assert.Equal(t, doc.ID, got.ID)

	_, ok = svc.Get("missing")
	assert.False(t, ok)
}

func TestSegmentUsesCallerID(t *testing.T) {
	svc := NewDocumentService()

	doc, err := svc.Segment("fixed-id", "一段正文。", model.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", doc.ID)

	passages := doc.Passages()
	require.Len(t, passages, 1)
	assert.Equal(t, "fixed-id#000", passages[0].ID)
	assert.Equal(t, model.SourceDocument, passages[0].Source)
}
