package templates

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 模板不存在（或索引项缺少内容路径、内容文件缺失）
	ErrNotFound = errors.New("template not found")
	// ErrValidation 请求字段缺失或非法
	ErrValidation = errors.New("validation failed")
	// ErrConflict 内容路径已被其他模板占用
	ErrConflict = errors.New("template path conflict")
)

// ValidationError names the first offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// Is makes errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
