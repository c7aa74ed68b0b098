package templates

import (
	"encoding/json"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
)

// Template 模板完整视图（索引头 + 内容文件）
type Template struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Department   string    `json:"department"`
	AppCode      string    `json:"appCode"`
	ContentPath  string    `json:"contentPath"`
	Version      string    `json:"version"`
	CreatedAt    string    `json:"createdAt"`
	CreatedBy    string    `json:"createdBy"`
	UpdatedAt    string    `json:"updatedAt"`
	UpdatedBy    string    `json:"updatedBy"`
	Content      string    `json:"content"`
	Instructions string    `json:"instructions"`
	Examples     []Example `json:"examples"`
}

// Example 示例输入输出对
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// UnmarshalJSON accepts the key spellings older clients send.
func (e *Example) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Input = firstString(raw, "input", "userInput", "question", "User Input")
	e.Output = firstString(raw, "output", "expectedOutput", "answer", "Expected Output")
	return nil
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Fields 创建/更新请求字段
type Fields struct {
	Name         string    `json:"name"`
	Department   string    `json:"department"`
	AppCode      string    `json:"appCode"`
	Content      string    `json:"content"`
	Instructions string    `json:"instructions"`
	Examples     []Example `json:"examples"`
}

// DeleteStatus tags the two outcomes of Delete.
type DeleteStatus string

const (
	StatusDeleted         DeleteStatus = "deleted"
	StatusPendingApproval DeleteStatus = "pending_approval"
)

// DeleteResult is either a direct deletion (DeletedID set) or a pending
// approval (Request set).
type DeleteResult struct {
	Status    DeleteStatus
	DeletedID string
	Request   *approval.Request
	Message   string
}

// PullRequest returns the pull request of a pending deletion, or nil.
func (r *DeleteResult) PullRequest() *bitbucket.PullRequestRef {
	if r == nil || r.Request == nil {
		return nil
	}
	pr := r.Request.PullRequest
	return &pr
}

// AppCodePair 部门与应用代码组合
type AppCodePair struct {
	Department string `json:"department"`
	AppCode    string `json:"appCode"`
}

// Structure 仓库结构（用于前端下拉筛选）
type Structure struct {
	Departments []string      `json:"departments"`
	AppCodes    []AppCodePair `json:"appCodes"`
}

// HistoryEntry 模板版本历史条目
type HistoryEntry struct {
	CommitID        string `json:"commitId"`
	TemplateID      string `json:"templateId,omitempty"`
	Version         string `json:"version"`
	Message         string `json:"message"`
	UserDisplayName string `json:"userDisplayName"`
	Timestamp       string `json:"timestamp"`
}

func fromHeader(h index.Header) Template {
	return Template{
		ID:          h.ID,
		Name:        h.Name,
		Department:  h.Department,
		AppCode:     h.AppCode,
		ContentPath: h.ContentPath,
		Version:     h.Version,
		CreatedAt:   h.CreatedAt,
		CreatedBy:   h.CreatedBy,
		UpdatedAt:   h.UpdatedAt,
		UpdatedBy:   h.UpdatedBy,
		Examples:    []Example{},
	}
}

func (t *Template) applyContent(c *index.Content) {
	t.Content = c.MainContent
	t.Instructions = c.Instructions
	t.Examples = make([]Example, 0, len(c.Examples))
	for _, ex := range c.Examples {
		t.Examples = append(t.Examples, Example{Input: ex.UserInput, Output: ex.ExpectedOutput})
	}
}

func contentOf(f Fields) index.Content {
	c := index.Content{
		MainContent:  f.Content,
		Instructions: f.Instructions,
		Examples:     make([]index.Example, 0, len(f.Examples)),
	}
	for _, ex := range f.Examples {
		c.Examples = append(c.Examples, index.Example{UserInput: ex.Input, ExpectedOutput: ex.Output})
	}
	return c
}
