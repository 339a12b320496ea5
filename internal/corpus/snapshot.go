// Package corpus 维护参考语料库的进程级内存快照。
// 快照在启动时从 Elasticsearch 一次性装载，之后只读；
// 写路径（索引管道）产出的新语料在下次启动时生效。
package corpus

import (
	"context"
	"fmt"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/es"
	"prop-eval-go/pkg/log"
	"sort"
)

// Snapshot 是按作用域组织的只读段落集合。
// 每个作用域内的段落按 Passage ID 升序存放，检索时的同分决胜依赖该顺序。
type Snapshot struct {
	scopes map[string][]model.Passage
}

// NewSnapshot 直接从内存数据构建快照，主要供测试与本地模式使用。
// 声明但没有数据的作用域传入空切片即可。
func NewSnapshot(scopes map[string][]model.Passage) *Snapshot {
	copied := make(map[string][]model.Passage, len(scopes))
	for scope, passages := range scopes {
		ps := make([]model.Passage, len(passages))
		copy(ps, passages)
		sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
		copied[scope] = ps
	}
	return &Snapshot{scopes: copied}
}

// Load 从 Elasticsearch 装载配置中声明的全部作用域。
func Load(ctx context.Context, cfg config.CorpusConfig, esCfg config.ElasticsearchConfig) (*Snapshot, error) {
	scopes := make(map[string][]model.Passage, len(cfg.Scopes))
	for _, scope := range cfg.Scopes {
		esPassages, err := es.FetchScopePassages(ctx, esCfg.IndexName, scope)
		if err != nil {
			return nil, fmt.Errorf("装载作用域 '%s' 失败: %w", scope, err)
		}
		passages := make([]model.Passage, 0, len(esPassages))
		for _, ep := range esPassages {
			passages = append(passages, ep.ToPassage())
		}
		scopes[scope] = passages
	}
	snapshot := NewSnapshot(scopes)
	log.Infof("语料快照装载完成, 共 %d 个作用域", len(cfg.Scopes))
	return snapshot, nil
}

// Passages 返回某作用域下按 ID 升序的段落切片。
// 第二个返回值指示该作用域是否存在；调用方不得修改返回的切片。
func (s *Snapshot) Passages(scope string) ([]model.Passage, bool) {
	ps, ok := s.scopes[scope]
	return ps, ok
}

// HasScope 报告作用域是否已声明。
func (s *Snapshot) HasScope(scope string) bool {
	_, ok := s.scopes[scope]
	return ok
}

// Scopes 返回全部已声明的作用域名称（升序）。
func (s *Snapshot) Scopes() []string {
	names := make([]string, 0, len(s.scopes))
	for scope := range s.scopes {
		names = append(names, scope)
	}
	sort.Strings(names)
	return names
}
