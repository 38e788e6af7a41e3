package pipeline

import (
	"regexp"
	"strings"
)

// DefaultChunkTokens 是每个分块的目标估算 token 数。
const DefaultChunkTokens = 500

var (
	spaceRE    = regexp.MustCompile(`\s+`)
	specialRE  = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()]`)
	sentenceRE = regexp.MustCompile(`[.!?]+`)
	punctRE    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// CleanText 清洗提取出的原始文本：折叠空白、去掉基础标点之外的特殊字符。
func CleanText(text string) string {
	text = spaceRE.ReplaceAllString(text, " ")
	text = specialRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// SplitIntoChunks 按句子边界将文本聚合成分块，每块不超过 chunkTokens 个估算 token。
// 单句超长时自成一块，不做截断。
func SplitIntoChunks(text string, chunkTokens int) []string {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	sentences := sentenceRE.Split(text, -1)
	var chunks []string
	var current strings.Builder
	currentTokens := 0
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		sentenceTokens := EstimateTokenCount(sentence)
		if currentTokens+sentenceTokens > chunkTokens && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			currentTokens = sentenceTokens
		} else {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)
			currentTokens += sentenceTokens
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// EstimateTokenCount 粗略估算文本的 token 数：单词数加标点符号数。
func EstimateTokenCount(text string) int {
	words := len(strings.Fields(text))
	punct := len(punctRE.FindAllString(text, -1))
	return words + punct
}
