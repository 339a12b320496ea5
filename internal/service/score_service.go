package service

import (
	"context"
	"encoding/json"
	"fmt"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/corpus"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/llm"
	"prop-eval-go/pkg/log"
	"strings"
)

// 评分结果中最多引用的支撑段落数。
const maxSupportingRefs = 3

// 无法被参考材料支撑的估算必须带上这个前缀，调用方据此识别。
const unsupportedEstimatePrefix = "[unsupported estimate] "

// ScoreService 定义了三类评分操作。
// extra 中的段落（通常来自在线增强）与语料段落同等参与计算。
type ScoreService interface {
	Novelty(ctx context.Context, doc SimilarityInput, corpusScope string, extra []model.Passage) (model.ScoreResult, error)
	Plagiarism(ctx context.Context, doc SimilarityInput, corpusScope string, extra []model.Passage) (model.ScoreResult, error)
	Cost(ctx context.Context, doc model.Document, corpusScope string, extra []model.Passage) (model.ScoreResult, error)
}

type scoreService struct {
	snapshot        *corpus.Snapshot
	similarity      SimilarityService
	retrieval       RetrievalService
	embeddingClient embedding.Client
	llmClient       llm.Client
	topK            int
}

// NewScoreService 创建一个新的 ScoreService 实例。
func NewScoreService(
	snapshot *corpus.Snapshot,
	similarity SimilarityService,
	retrieval RetrievalService,
	embeddingClient embedding.Client,
	llmClient llm.Client,
	topK int,
) ScoreService {
	if topK <= 0 {
		topK = 10
	}
	return &scoreService{
		snapshot:        snapshot,
		similarity:      similarity,
		retrieval:       retrieval,
		embeddingClient: embeddingClient,
		llmClient:       llmClient,
		topK:            topK,
	}
}

// Novelty 计算新颖度 = 1 - 与参考材料的最大相似度，区间 [0,1]。
// 相同输入产出相同分数；没有任何参考段落时拒绝评分。
func (s *scoreService) Novelty(ctx context.Context, doc SimilarityInput, corpusScope string, extra []model.Passage) (model.ScoreResult, error) {
	verdicts, err := s.scoreAgainstReferences(ctx, doc, corpusScope, extra)
	if err != nil {
		return model.ScoreResult{}, err
	}

	maxSim := verdicts[0].Score
	value := corpus.Clamp01(1 - maxSim)
	supporting := topSupporting(verdicts, maxSupportingRefs)

	rationale := s.rationaleFor(ctx, "novelty", doc, verdicts,
		fmt.Sprintf("与参考材料的最大相似度为 %.4f，新颖度 %.4f", maxSim, value))

	log.Infof("[ScoreService] 新颖度评分完成, source: %s, value: %.4f", doc.ID, value)
	return model.ScoreResult{
		Kind:       model.ScoreKindNovelty,
		Value:      value,
		Unit:       "ratio",
		Rationale:  rationale,
		Supporting: supporting,
	}, nil
}

// Plagiarism 计算抄袭嫌疑分，即与参考材料的最大相似度。
// 最大相似度低于阈值时直接判零分且不引用任何段落，不调用生成模型。
func (s *scoreService) Plagiarism(ctx context.Context, doc SimilarityInput, corpusScope string, extra []model.Passage) (model.ScoreResult, error) {
	verdicts, err := s.scoreAgainstReferences(ctx, doc, corpusScope, extra)
	if err != nil {
		return model.ScoreResult{}, err
	}

	threshold := config.Conf.Scoring.PlagiarismThreshold
	if threshold <= 0 {
		threshold = 0.85
	}

	maxSim := verdicts[0].Score
	if maxSim < threshold {
		log.Infof("[ScoreService] 抄袭评分低于阈值, source: %s, max: %.4f, threshold: %.2f", doc.ID, maxSim, threshold)
		return model.ScoreResult{
			Kind:       model.ScoreKindPlagiarism,
			Value:      0,
			Unit:       "ratio",
			Rationale:  fmt.Sprintf("最大相似度 %.4f 低于阈值 %.2f，未发现抄袭嫌疑", maxSim, threshold),
			Supporting: []string{},
		}, nil
	}

	// 只有达到阈值的段落才能作为证据
	var supporting []string
	for _, v := range verdicts {
		if v.Score < threshold || len(supporting) >= maxSupportingRefs {
			break
		}
		supporting = append(supporting, v.ReferenceID)
	}

	rationale := s.rationaleFor(ctx, "plagiarism", doc, verdicts,
		fmt.Sprintf("最大相似度 %.4f 达到阈值 %.2f，存在抄袭嫌疑", maxSim, threshold))

	log.Warnf("[ScoreService] 抄袭评分达到阈值, source: %s, value: %.4f", doc.ID, maxSim)
	return model.ScoreResult{
		Kind:       model.ScoreKindPlagiarism,
		Value:      maxSim,
		Unit:       "ratio",
		Rationale:  rationale,
		Supporting: supporting,
	}, nil
}

// costEstimate 是生成模型返回的成本估算结构。
type costEstimate struct {
	Amount        float64  `json:"amount"`
	Currency      string   `json:"currency"`
	Rationale     string   `json:"rationale"`
	SupportedRefs []string `json:"supported_refs"`
}

// Cost 估算文档描述的方案成本。
// 与另外两类评分一致，没有任何参考段落时拒绝评分；
// 估算必须落在配置的区间内，引用只能来自本轮检索结果，
// 有参考但模型未能引用时估算被打上 unsupported 前缀而不是被拒绝。
func (s *scoreService) Cost(ctx context.Context, doc model.Document, corpusScope string, extra []model.Passage) (model.ScoreResult, error) {
	currency := config.Conf.Scoring.CostCurrency
	if currency == "" {
		currency = "CNY"
	}
	maxAmount := config.Conf.Scoring.CostMaxAmount

	// 先检索与方案最相关的参考段落，作为估算的可引用证据
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, doc.Text())
	if err != nil {
		return model.ScoreResult{}, apperr.Wrap(apperr.KindEmbeddingUnavailable, "方案向量化失败", err)
	}
	retrieved, err := s.retrieval.Retrieve(ctx, queryVector, corpusScope, s.topK)
	if err != nil {
		return model.ScoreResult{}, err
	}
	for _, p := range extra {
		retrieved = append(retrieved, model.ScoredPassage{
			Passage: p,
			Score:   corpus.Relevance(corpus.Cosine(queryVector, p.Vector)),
		})
	}
	SortByScore(retrieved)

	// 零证据时不得进入生成，直接拒绝评分
	if len(retrieved) == 0 {
		return model.ScoreResult{}, apperr.Newf(apperr.KindInsufficientEvidence, "作用域 '%s' 下没有任何可引用的参考段落", corpusScope)
	}

	raw, err := s.llmClient.Complete(ctx, buildCostMessages(doc, retrieved, currency), nil)
	if err != nil {
		if ctx.Err() != nil {
			return model.ScoreResult{}, apperr.Wrap(apperr.KindGenerationTimeout, "成本估算调用超时或被取消", err)
		}
		return model.ScoreResult{}, apperr.Wrap(apperr.KindInternal, "成本估算调用失败", err)
	}

	var estimate costEstimate
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &estimate); err != nil {
		return model.ScoreResult{}, apperr.Wrap(apperr.KindExtractionValidation, "成本估算结果不是合法的 JSON", err)
	}
	if estimate.Amount < 0 {
		return model.ScoreResult{}, apperr.Newf(apperr.KindExtractionValidation, "成本估算为负数: %.2f", estimate.Amount)
	}
	if maxAmount > 0 && estimate.Amount > maxAmount {
		return model.ScoreResult{}, apperr.Newf(apperr.KindExtractionValidation, "成本估算 %.2f 超出上限 %.2f", estimate.Amount, maxAmount)
	}

	// 引用白名单校验：不在本轮检索结果中的引用一律丢弃
	validIDs := make(map[string]struct{}, len(retrieved))
	for _, sp := range retrieved {
		validIDs[sp.Passage.ID] = struct{}{}
	}
	supporting := make([]string, 0, len(estimate.SupportedRefs))
	for _, ref := range estimate.SupportedRefs {
		if _, ok := validIDs[ref]; ok {
			supporting = append(supporting, ref)
		}
	}

	rationale := strings.TrimSpace(estimate.Rationale)
	if rationale == "" {
		rationale = "模型未给出估算依据"
	}
	if len(supporting) == 0 {
		rationale = unsupportedEstimatePrefix + rationale
	}

	log.Infof("[ScoreService] 成本估算完成, document: %s, amount: %.2f %s, 支撑引用 %d 条", doc.ID, estimate.Amount, currency, len(supporting))
	return model.ScoreResult{
		Kind:       model.ScoreKindCost,
		Value:      estimate.Amount,
		Unit:       currency,
		Rationale:  rationale,
		Supporting: supporting,
	}, nil
}

// scoreAgainstReferences 汇总语料段落与额外段落，返回按分数降序的相似度判定。
// 没有任何参考段落时返回 InsufficientEvidence。
func (s *scoreService) scoreAgainstReferences(ctx context.Context, doc SimilarityInput, corpusScope string, extra []model.Passage) ([]model.SimilarityVerdict, error) {
	passages, ok := s.snapshot.Passages(corpusScope)
	if !ok {
		return nil, apperr.Newf(apperr.KindCorpusUnavailable, "作用域 '%s' 未声明任何语料索引", corpusScope)
	}

	refs := make([]model.Passage, 0, len(passages)+len(extra))
	refs = append(refs, passages...)
	refs = append(refs, extra...)
	if len(refs) == 0 {
		return nil, apperr.Newf(apperr.KindInsufficientEvidence, "作用域 '%s' 下没有任何可对比的参考段落", corpusScope)
	}

	verdicts, err := s.similarity.ScoreAgainstPassages(ctx, doc, refs)
	if err != nil {
		return nil, err
	}
	return verdicts, nil
}

// topSupporting 取分数最高的若干引用。
func topSupporting(verdicts []model.SimilarityVerdict, n int) []string {
	if len(verdicts) < n {
		n = len(verdicts)
	}
	ids := make([]string, 0, n)
	for _, v := range verdicts[:n] {
		ids = append(ids, v.ReferenceID)
	}
	return ids
}

// rationaleFor 请求生成模型给出评分解释；生成失败时退回确定性的内置解释。
func (s *scoreService) rationaleFor(ctx context.Context, kind string, doc SimilarityInput, verdicts []model.SimilarityVerdict, fallback string) string {
	var evidence strings.Builder
	limit := maxSupportingRefs
	if len(verdicts) < limit {
		limit = len(verdicts)
	}
	for _, v := range verdicts[:limit] {
		evidence.WriteString(fmt.Sprintf("- %s 相似度 %.4f\n", v.ReferenceID, v.Score))
	}

	messages := []llm.Message{
		{Role: "system", Content: "你是一名评审助理。用不超过三句话解释评分依据，只陈述事实，不要输出 JSON 或列表。"},
		{Role: "user", Content: fmt.Sprintf("评分类型: %s\n结论: %s\n相似度最高的参考段落:\n%s", kind, fallback, evidence.String())},
	}

	rationale, err := s.llmClient.Complete(ctx, messages, nil)
	if err != nil || strings.TrimSpace(rationale) == "" {
		if err != nil {
			log.Warnf("[ScoreService] 评分解释生成失败，使用内置解释: %v", err)
		}
		return fallback
	}
	return strings.TrimSpace(rationale)
}

func buildCostMessages(doc model.Document, retrieved model.RetrievalResult, currency string) []llm.Message {
	var refs strings.Builder
	for _, sp := range retrieved {
		refs.WriteString(fmt.Sprintf("<%s>\n%s\n</%s>\n", sp.Passage.ID, sp.Passage.Text, sp.Passage.ID))
	}

	system := fmt.Sprintf(`你是一名成本评估师。估算方案文档描述的总成本。
要求：
1. 只输出一个 JSON 对象: {"amount": 数字, "currency": "%s", "rationale": "估算依据", "supported_refs": ["段落ID"]}，不要输出其他文字。
2. supported_refs 只能引用参考段落标签中的 ID；没有可支撑的参考时输出空数组。
3. amount 为非负数字，单位 %s。`, currency, currency)

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("方案文档:\n%s\n\n参考段落:\n%s", doc.Text(), refs.String())},
	}
}
