// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查语料索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量维度与 embedding 配置保持一致，相似度使用 cosine
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"passage_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"scope": { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"source": { "type": "keyword" }
			}
		}
	}`, config.Conf.Embedding.Dimensions)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexPassage 将单个段落索引到 Elasticsearch。
func IndexPassage(ctx context.Context, indexName string, doc model.EsPassage) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.PassageID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引段落到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index passage")
	}

	return nil
}

// DeletePassagesByDocument 删除某篇文档已索引的全部段落（重建前的幂等清理）。
func DeletePassagesByDocument(ctx context.Context, indexName, documentID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":"%s"}}}`, documentID)
	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		strings.NewReader(query),
		ESClient.DeleteByQuery.WithContext(ctx),
		ESClient.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete_by_query 返回错误: %s", res.String())
	}
	return nil
}

// FetchScopePassages 拉取某个作用域下的全部段落，供启动时装载内存快照。
// 按 passage_id 升序分页，避免一次性深分页。
func FetchScopePassages(ctx context.Context, indexName, scope string) ([]model.EsPassage, error) {
	const pageSize = 1000
	var all []model.EsPassage
	var searchAfter string

	for {
		var buf bytes.Buffer
		query := map[string]interface{}{
			"size": pageSize,
			"query": map[string]interface{}{
				"term": map[string]interface{}{"scope": scope},
			},
			"sort": []map[string]interface{}{
				{"passage_id": map[string]interface{}{"order": "asc"}},
			},
		}
		if searchAfter != "" {
			query["search_after"] = []interface{}{searchAfter}
		}
		if err := json.NewEncoder(&buf).Encode(query); err != nil {
			return nil, fmt.Errorf("failed to encode snapshot query: %w", err)
		}

		res, err := ESClient.Search(
			ESClient.Search.WithContext(ctx),
			ESClient.Search.WithIndex(indexName),
			ESClient.Search.WithBody(&buf),
		)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch search failed: %w", err)
		}

		var esResponse struct {
			Hits struct {
				Hits []struct {
					Source model.EsPassage `json:"_source"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if res.IsError() {
			res.Body.Close()
			return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
		}
		err = json.NewDecoder(res.Body).Decode(&esResponse)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode es response: %w", err)
		}

		if len(esResponse.Hits.Hits) == 0 {
			break
		}
		for _, hit := range esResponse.Hits.Hits {
			all = append(all, hit.Source)
		}
		searchAfter = esResponse.Hits.Hits[len(esResponse.Hits.Hits)-1].Source.PassageID
		if len(esResponse.Hits.Hits) < pageSize {
			break
		}
	}

	log.Infof("作用域 '%s' 共装载 %d 个段落", scope, len(all))
	return all, nil
}
