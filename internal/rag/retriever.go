package rag

import (
	"context"
	"fmt"
	"math"
	"sort"

	"agent-platform-go/internal/model"

	"github.com/google/uuid"
)

// TopK 的合法区间，越界的请求值会被收拢到区间内。
const (
	MinTopK = 1
	MaxTopK = 10
)

// ChunkStore 定义检索候选块的数据访问契约。
// 实现方负责归属过滤：owner 为空时只返回公共块（owner 为 NULL），
// 否则只返回该用户自己的块，二者永不混合。
type ChunkStore interface {
	FindCandidates(ctx context.Context, owner *uuid.UUID, documentID *uuid.UUID) ([]model.Chunk, error)
}

// RetrievedChunk 是一次检索命中的候选块，Rank 从 1 开始。
// Text 携带完整块文本，既用于提示词拼装，也是引用摘要的截取来源。
type RetrievedChunk struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Similarity float64   `json:"similarity"`
	Rank       int       `json:"rank"`
}

// Retriever 对候选块做余弦相似度排序，返回前 topK 个结果。
// 排序完全在进程内完成，保证同样的输入得到同样的输出。
type Retriever struct {
	store ChunkStore
}

// NewRetriever 创建一个 Retriever 实例。
func NewRetriever(store ChunkStore) *Retriever {
	return &Retriever{store: store}
}

// Retrieve 返回与查询向量最相似的至多 topK 个块。
// 候选集为空时返回空列表而非错误；查询向量与存储向量维度不一致
// 说明入库数据有缺陷，返回 DataIntegrityError。
func (r *Retriever) Retrieve(ctx context.Context, queryVector []float32, owner *uuid.UUID, documentID *uuid.UUID, topK int) ([]RetrievedChunk, error) {
	topK = ClampTopK(topK)

	candidates, err := r.store.FindCandidates(ctx, owner, documentID)
	if err != nil {
		return nil, fmt.Errorf("查询候选块失败: %w", err)
	}
	if len(candidates) == 0 {
		return []RetrievedChunk{}, nil
	}

	scored := make([]RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		stored := c.Embedding.Slice()
		if len(stored) != len(queryVector) {
			return nil, NewDataIntegrityError(
				"embedding dimension mismatch: chunk %s has %d dimensions, query has %d",
				c.ID, len(stored), len(queryVector))
		}
		scored = append(scored, RetrievedChunk{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.ChunkText,
			Similarity: CosineSimilarity(queryVector, stored),
		})
	}

	// 相似度降序；相同分数按 chunk_index 升序，再按 document_id 兜底，
	// 保证排序结果是全序且可复现。
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if scored[i].ChunkIndex != scored[j].ChunkIndex {
			return scored[i].ChunkIndex < scored[j].ChunkIndex
		}
		return scored[i].DocumentID.String() < scored[j].DocumentID.String()
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored, nil
}

// ClampTopK 将 topK 收拢到 [MinTopK, MaxTopK] 区间。
func ClampTopK(topK int) int {
	if topK < MinTopK {
		return MinTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

// CosineSimilarity 计算两个向量的余弦相似度并收拢到 [0, 1]。
// 任一向量范数为零时返回 0，负相似度按约定归零。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
