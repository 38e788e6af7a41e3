// Package rag 实现检索增强生成的核心流水线：
// 候选块的相似度排序、提示词拼装以及引用映射。
// 包内不做任何网络或数据库 I/O，外部依赖全部通过接口注入。
package rag

import "fmt"

// ValidationError 表示调用方输入不合法（对应 4xx），不应重试。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 构造一个输入校验错误。
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// DataIntegrityError 表示存储的数据与预期不符（例如向量维度错误），
// 对应 5xx。这类错误说明入库环节存在缺陷，必须立即失败，禁止降级或跳过。
type DataIntegrityError struct {
	Message string
}

func (e *DataIntegrityError) Error() string {
	return e.Message
}

// NewDataIntegrityError 构造一个数据完整性错误。
func NewDataIntegrityError(format string, args ...interface{}) *DataIntegrityError {
	return &DataIntegrityError{Message: fmt.Sprintf(format, args...)}
}

// EmbeddingError 表示向量化服务调用失败（对应 5xx）。
// StatusCode 与 Detail 记录服务商返回的原始信息，只进日志，不回传给用户。
type EmbeddingError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding request failed (status %d): %s: %v", e.StatusCode, e.Detail, e.Err)
	}
	return fmt.Sprintf("embedding request failed (status %d): %s", e.StatusCode, e.Detail)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// RemoteGenerationError 表示生成服务调用失败（对应 5xx）。
// 服务商的状态码与错误详情同样只入日志，对用户展示通用文案。
type RemoteGenerationError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *RemoteGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation request failed (status %d): %s: %v", e.StatusCode, e.Detail, e.Err)
	}
	return fmt.Sprintf("generation request failed (status %d): %s", e.StatusCode, e.Detail)
}

func (e *RemoteGenerationError) Unwrap() error {
	return e.Err
}

// IsRateLimited 判断生成错误是否由服务商限流导致，仅此类错误允许重试一次。
func (e *RemoteGenerationError) IsRateLimited() bool {
	return e.StatusCode == 429
}
