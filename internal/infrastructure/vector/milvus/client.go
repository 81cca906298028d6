package milvus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// Client talks to a Milvus server over its v2 REST API. It implements
// the vector store port: one call searches one collection; the caller
// owns fan-out and merging.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	collection string,
	vector []float32,
	limit int,
	filter domain.CollectionFilter,
	scoreThreshold float64,
) ([]domain.StoreHit, error) {
	reqBody := map[string]any{
		"collectionName": collection,
		"data":           [][]float32{vector},
		"annsField":      "embedding",
		"limit":          limit,
		"outputFields":   []string{"*"},
	}
	if expr := filterExpr(filter); expr != "" {
		reqBody["filter"] = expr
	}

	var searchResp struct {
		Code int              `json:"code"`
		Data []map[string]any `json:"data"`
	}
	if err := c.post(ctx, "/v2/vectordb/entities/search", reqBody, &searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "milvus search "+collection, err)
	}
	if searchResp.Code != 0 {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "milvus search "+collection, fmt.Errorf("server code %d", searchResp.Code))
	}

	hits := make([]domain.StoreHit, 0, len(searchResp.Data))
	for _, row := range searchResp.Data {
		score := floatField(row, "distance")
		if score < scoreThreshold {
			continue
		}
		hit := domain.StoreHit{
			ID:         stringField(row, "id"),
			Score:      score,
			Text:       recordText(row),
			Attributes: make(map[string]any, len(row)),
		}
		for k, v := range row {
			if k == "distance" || k == "embedding" {
				continue
			}
			hit.Attributes[k] = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// CollectionRowCount reports how many records a collection holds. Used
// by the collections endpoint for operational visibility.
func (c *Client) CollectionRowCount(ctx context.Context, collection string) (int64, error) {
	reqBody := map[string]any{"collectionName": collection}

	var statsResp struct {
		Code int `json:"code"`
		Data struct {
			RowCount int64 `json:"rowCount"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v2/vectordb/collections/get_stats", reqBody, &statsResp); err != nil {
		return 0, fmt.Errorf("milvus stats %s: %w", collection, err)
	}
	if statsResp.Code != 0 {
		return 0, fmt.Errorf("milvus stats %s: server code %d", collection, statsResp.Code)
	}
	return statsResp.Data.RowCount, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			return fmt.Errorf("status %s: %s", resp.Status, trimmed)
		}
		return fmt.Errorf("status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// filterExpr renders the collection filter as a Milvus boolean
// expression, e.g. `target_antigen == "CD19" and year >= 2020`.
func filterExpr(f domain.CollectionFilter) string {
	var clauses []string
	if f.TargetAntigen != "" {
		clauses = append(clauses, fmt.Sprintf("target_antigen == %q", f.TargetAntigen))
	}
	if f.YearField != "" {
		if f.YearMin != 0 {
			clauses = append(clauses, fmt.Sprintf("%s >= %d", f.YearField, f.YearMin))
		}
		if f.YearMax != 0 {
			clauses = append(clauses, fmt.Sprintf("%s <= %d", f.YearField, f.YearMax))
		}
	}
	return strings.Join(clauses, " and ")
}

// recordText picks the display text for a hit. Summary-style
// collections store text_summary, chunked ones store text_chunk.
func recordText(row map[string]any) string {
	if s := stringField(row, "text_summary"); s != "" {
		return s
	}
	return stringField(row, "text_chunk")
}

func stringField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	// Milvus returns int64 primary keys as JSON numbers.
	if n, ok := v.(float64); ok && n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%v", v)
}

func floatField(row map[string]any, key string) float64 {
	if n, ok := row[key].(float64); ok {
		return n
	}
	return 0
}
