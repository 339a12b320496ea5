// Package service 包含了应用的业务逻辑层。
package service

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DocumentService 定义了文档入库适配器的操作。
// Ingest 只产出内存中的规范化 Document，持久化由外部协作方负责；
// 已入库文档会在本进程内缓存一段时间，供后续按 ID 引用。
type DocumentService interface {
	Ingest(rawText string, meta model.Metadata) (model.Document, error)
	Segment(id, rawText string, meta model.Metadata) (model.Document, error)
	Get(id string) (model.Document, bool)
}

const (
	documentCacheTTL = time.Hour
	documentCacheCap = 1024
)

type cachedDocument struct {
	doc       model.Document
	expiresAt time.Time
}

type documentService struct {
	mu    sync.RWMutex
	cache map[string]cachedDocument
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService() DocumentService {
	return &documentService{cache: make(map[string]cachedDocument)}
}

// Ingest 将原始文本切分为章节并生成 Document。
// 无法切分出任何非空章节时返回 MalformedDocumentError。
func (s *documentService) Ingest(rawText string, meta model.Metadata) (model.Document, error) {
	return s.Segment(uuid.NewString(), rawText, meta)
}

// Segment 与 Ingest 相同，但使用调用方指定的文档 ID（索引管道需要稳定 ID）。
func (s *documentService) Segment(id, rawText string, meta model.Metadata) (model.Document, error) {
	sections := segment(rawText)
	if len(sections) == 0 {
		return model.Document{}, apperr.New(apperr.KindMalformedDocument, "文档无法切分出任何非空章节")
	}

	doc := model.Document{
		ID:       id,
		Sections: sections,
		Meta:     meta,
	}

	s.mu.Lock()
	s.evictLocked()
	s.cache[doc.ID] = cachedDocument{doc: doc, expiresAt: time.Now().Add(documentCacheTTL)}
	s.mu.Unlock()

	log.Infof("[DocumentService] 文档入库成功, id: %s, 章节数: %d", doc.ID, len(doc.Sections))
	return doc, nil
}

// Get 按 ID 返回已入库的文档。
func (s *documentService) Get(id string) (model.Document, bool) {
	s.mu.RLock()
	entry, ok := s.cache[id]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return model.Document{}, false
	}
	return entry.doc, true
}

// evictLocked 清理过期条目；缓存仍超限时继续淘汰最早过期的条目。
func (s *documentService) evictLocked() {
	now := time.Now()
	for id, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, id)
		}
	}
	for len(s.cache) >= documentCacheCap {
		var oldestID string
		var oldest time.Time
		for id, entry := range s.cache {
			if oldestID == "" || entry.expiresAt.Before(oldest) {
				oldestID = id
				oldest = entry.expiresAt
			}
		}
		delete(s.cache, oldestID)
	}
}

// 标题行的启发式：markdown 井号标题，或 "1."、"2.3" 一类的编号标题。
var headingPattern = regexp.MustCompile(`^(#{1,6}\s+\S|\d+(\.\d+)*[.)]?\s+\S)`)

// segment 将原始文本切分为带偏移量的章节序列。
// 存在标题行时按标题切分，否则按空行分段；空白段落被丢弃。
func segment(rawText string) []model.Section {
	if strings.TrimSpace(rawText) == "" {
		return nil
	}

	lines := splitLinesWithOffsets(rawText)
	hasHeading := false
	for _, ln := range lines {
		if headingPattern.MatchString(ln.text) {
			hasHeading = true
			break
		}
	}

	if hasHeading {
		return segmentByHeadings(rawText, lines)
	}
	return segmentByParagraphs(rawText, lines)
}

type offsetLine struct {
	text  string
	start int
	end   int
}

func splitLinesWithOffsets(text string) []offsetLine {
	var lines []offsetLine
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			lines = append(lines, offsetLine{text: text[start:i], start: start, end: i})
			start = i + 1
		}
	}
	return lines
}

func segmentByHeadings(rawText string, lines []offsetLine) []model.Section {
	var sections []model.Section
	heading := ""
	bodyStart := 0
	flush := func(end int) {
		body := strings.TrimSpace(rawText[bodyStart:end])
		if body == "" && heading == "" {
			return
		}
		if body == "" {
			// 只有标题没有正文的块保留标题本身作为内容
			body = heading
		}
		sections = append(sections, model.Section{
			Heading: heading,
			Text:    body,
			Start:   bodyStart,
			End:     end,
		})
	}

	started := false
	for _, ln := range lines {
		if headingPattern.MatchString(ln.text) {
			if started {
				flush(ln.start)
			}
			heading = strings.TrimSpace(strings.TrimLeft(ln.text, "# "))
			bodyStart = ln.end + 1
			if bodyStart > len(rawText) {
				bodyStart = len(rawText)
			}
			started = true
		}
	}
	if started {
		flush(len(rawText))
	} else {
		// 理论上不可达：调用前已检测到标题行
		return segmentByParagraphs(rawText, lines)
	}

	// 标题之前的引言部分也要保留
	firstHeadingStart := -1
	for _, ln := range lines {
		if headingPattern.MatchString(ln.text) {
			firstHeadingStart = ln.start
			break
		}
	}
	if firstHeadingStart > 0 {
		preamble := strings.TrimSpace(rawText[:firstHeadingStart])
		if preamble != "" {
			sections = append([]model.Section{{
				Heading: "",
				Text:    preamble,
				Start:   0,
				End:     firstHeadingStart,
			}}, sections...)
		}
	}
	return sections
}

func segmentByParagraphs(rawText string, lines []offsetLine) []model.Section {
	var sections []model.Section
	paraStart := -1
	var paraEnd int
	flush := func() {
		if paraStart < 0 {
			return
		}
		body := strings.TrimSpace(rawText[paraStart:paraEnd])
		if body != "" {
			sections = append(sections, model.Section{
				Heading: "",
				Text:    body,
				Start:   paraStart,
				End:     paraEnd,
			})
		}
		paraStart = -1
	}

	for _, ln := range lines {
		if strings.TrimSpace(ln.text) == "" {
			flush()
			continue
		}
		if paraStart < 0 {
			paraStart = ln.start
		}
		paraEnd = ln.end
	}
	flush()
	return sections
}
