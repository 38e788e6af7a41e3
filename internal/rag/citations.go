package rag

import "github.com/google/uuid"

// DefaultSnippetLength 是引用摘要的默认展示长度（按字符计）。
const DefaultSnippetLength = 200

// Citation 是返回给前端的单条引用，与进入提示词的块一一对应。
type Citation struct {
	ID         uuid.UUID `json:"id"`
	Snippet    string    `json:"snippet"`
	Similarity float64   `json:"similarity"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
}

// MapCitations 将进入提示词的块按 Rank 顺序映射为引用列表。
// 相似度保持检索时的原值，不做二次计算；摘要按字符截断并补省略号，
// 不会劈开多字节字符。
func MapCitations(included []RetrievedChunk, snippetLength int) []Citation {
	if snippetLength <= 0 {
		snippetLength = DefaultSnippetLength
	}
	citations := make([]Citation, 0, len(included))
	for _, c := range included {
		citations = append(citations, Citation{
			ID:         c.ChunkID,
			Snippet:    truncateRunes(c.Text, snippetLength),
			Similarity: c.Similarity,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
		})
	}
	return citations
}

// truncateRunes 按字符数截断字符串，发生截断时在末尾补省略号，
// 保证多字节字符不被截断。
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
