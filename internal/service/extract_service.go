package service

import (
	"context"
	"encoding/json"
	"fmt"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/llm"
	"prop-eval-go/pkg/log"
	"sort"
	"strings"
	"time"
)

// fieldKind 是 schema 字段的类型约束。
type fieldKind string

const (
	kindString fieldKind = "string"
	kindNumber fieldKind = "number"
	kindDate   fieldKind = "date"
	// kindPassageRef 必须命中输入文档的某个段落 ID
	kindPassageRef fieldKind = "passage_ref"
)

// FieldSpec 声明 schema 中一个字段的名称、类型与是否必填。
type FieldSpec struct {
	Name     string
	Kind     fieldKind
	Required bool
}

// schemaSpec 是一个可抽取的结构化 schema：字段集合与可选的排序键。
type schemaSpec struct {
	Fields  []FieldSpec
	SortKey string
}

// 内置的抽取 schema 注册表。
var schemaRegistry = map[string]schemaSpec{
	// 时间线：按日期升序的里程碑序列，每条必须标注来源段落
	"timeline": {
		Fields: []FieldSpec{
			{Name: "date", Kind: kindDate, Required: true},
			{Name: "milestone", Kind: kindString, Required: true},
			{Name: "passage_id", Kind: kindPassageRef, Required: true},
		},
		SortKey: "date",
	},
	// 关键事实：自由文本断言加来源段落
	"key_facts": {
		Fields: []FieldSpec{
			{Name: "fact", Kind: kindString, Required: true},
			{Name: "passage_id", Kind: kindPassageRef, Required: true},
		},
	},
}

// SchemaNames 返回全部已注册 schema 的名称，升序排列。
func SchemaNames() []string {
	names := make([]string, 0, len(schemaRegistry))
	for name := range schemaRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractService 定义了从文档抽取结构化记录的操作。
type ExtractService interface {
	Extract(ctx context.Context, schema string, doc model.Document) (model.ExtractionRecord, error)
	Timeline(ctx context.Context, doc model.Document) (model.ExtractionRecord, error)
}

type extractService struct {
	llmClient llm.Client
}

// NewExtractService 创建一个新的 ExtractService 实例。
func NewExtractService(llmClient llm.Client) ExtractService {
	return &extractService{llmClient: llmClient}
}

// Timeline 抽取文档中带日期的里程碑并按日期升序返回。
func (s *extractService) Timeline(ctx context.Context, doc model.Document) (model.ExtractionRecord, error) {
	return s.Extract(ctx, "timeline", doc)
}

// Extract 按指定 schema 抽取结构化记录。
// 生成结果不满足 schema 时整体拒绝并返回 ExtractionValidation 错误，不返回部分数据。
func (s *extractService) Extract(ctx context.Context, schema string, doc model.Document) (model.ExtractionRecord, error) {
	def, ok := schemaRegistry[schema]
	if !ok {
		return model.ExtractionRecord{}, apperr.Newf(apperr.KindInvalidArgument, "未注册的抽取 schema: %s", schema)
	}
	passages := doc.Passages()
	if len(passages) == 0 {
		return model.ExtractionRecord{}, apperr.New(apperr.KindMalformedDocument, "文档没有可抽取的段落")
	}

	raw, err := s.llmClient.Complete(ctx, buildExtractionMessages(schema, def, passages), nil)
	if err != nil {
		if ctx.Err() != nil {
			return model.ExtractionRecord{}, apperr.Wrap(apperr.KindGenerationTimeout, "抽取调用超时或被取消", err)
		}
		return model.ExtractionRecord{}, apperr.Wrap(apperr.KindInternal, "抽取调用失败", err)
	}

	rows, err := parseExtractionRows(raw)
	if err != nil {
		return model.ExtractionRecord{}, err
	}

	validIDs := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		validIDs[p.ID] = struct{}{}
	}
	for i, row := range rows {
		if err := validateRow(def, row, validIDs); err != nil {
			return model.ExtractionRecord{}, apperr.Wrapf(apperr.KindExtractionValidation, err, "第 %d 行不满足 schema '%s'", i+1, schema)
		}
	}

	if def.SortKey != "" {
		sortRowsByDate(rows, def.SortKey)
	}

	log.Infof("[ExtractService] 抽取完成, schema: %s, document: %s, 共 %d 行", schema, doc.ID, len(rows))
	return model.ExtractionRecord{Schema: schema, Rows: rows}, nil
}

func buildExtractionMessages(schema string, def schemaSpec, passages []model.Passage) []llm.Message {
	var fieldDesc strings.Builder
	for _, f := range def.Fields {
		req := "可选"
		if f.Required {
			req = "必填"
		}
		fieldDesc.WriteString(fmt.Sprintf("- %s (%s, %s)\n", f.Name, f.Kind, req))
	}

	var corpus strings.Builder
	for _, p := range passages {
		corpus.WriteString(fmt.Sprintf("<%s>\n%s\n</%s>\n", p.ID, p.Text, p.ID))
	}

	system := fmt.Sprintf(`你是一个结构化信息抽取器。从给定段落中抽取 "%s" 记录。
字段定义：
%s
要求：
1. 只输出一个 JSON 数组，数组元素为对象，不要输出任何其他文字或代码块标记。
2. passage_id 必须是某个段落标签中的 ID，禁止编造。
3. date 字段使用 YYYY-MM-DD 格式；原文只有年月时使用该月第一天。
4. 找不到任何记录时输出空数组 []。`, schema, fieldDesc.String())

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: corpus.String()},
	}
}

// parseExtractionRows 解析生成输出为行集合，容忍包裹的代码块标记。
func parseExtractionRows(raw string) ([]map[string]interface{}, error) {
	cleaned := stripCodeFence(raw)
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &rows); err != nil {
		return nil, apperr.Wrap(apperr.KindExtractionValidation, "生成结果不是合法的 JSON 数组", err)
	}
	return rows, nil
}

// stripCodeFence 去掉生成结果外层的 ``` 代码块标记。
func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// 日期字段接受的格式，按优先级排列。
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006",
	time.RFC3339,
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 '%s'", value)
}

func validateRow(def schemaSpec, row map[string]interface{}, validIDs map[string]struct{}) error {
	for _, f := range def.Fields {
		value, present := row[f.Name]
		if !present || value == nil {
			if f.Required {
				return fmt.Errorf("缺少必填字段 '%s'", f.Name)
			}
			continue
		}
		switch f.Kind {
		case kindString:
			str, ok := value.(string)
			if !ok || strings.TrimSpace(str) == "" {
				return fmt.Errorf("字段 '%s' 必须是非空字符串", f.Name)
			}
		case kindNumber:
			if _, ok := value.(float64); !ok {
				return fmt.Errorf("字段 '%s' 必须是数字", f.Name)
			}
		case kindDate:
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("字段 '%s' 必须是日期字符串", f.Name)
			}
			if _, err := parseDate(str); err != nil {
				return fmt.Errorf("字段 '%s': %w", f.Name, err)
			}
		case kindPassageRef:
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("字段 '%s' 必须是段落 ID 字符串", f.Name)
			}
			if _, exists := validIDs[str]; !exists {
				return fmt.Errorf("字段 '%s' 引用了不存在的段落 '%s'", f.Name, str)
			}
		}
	}
	return nil
}

// sortRowsByDate 按日期键升序稳定排序，同日期保持生成顺序。
func sortRowsByDate(rows []map[string]interface{}, key string) {
	sort.SliceStable(rows, func(i, j int) bool {
		di, erri := parseDate(fmt.Sprint(rows[i][key]))
		dj, errj := parseDate(fmt.Sprint(rows[j][key]))
		if erri != nil || errj != nil {
			return false
		}
		return di.Before(dj)
	})
}
