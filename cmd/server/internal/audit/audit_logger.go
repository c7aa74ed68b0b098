package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditAction 审计日志操作类型
type AuditAction string

const (
	ActionCreateTemplate    AuditAction = "create_template"
	ActionUpdateTemplate    AuditAction = "update_template"
	ActionDeleteTemplate    AuditAction = "delete_template"
	ActionRequestDeletion   AuditAction = "request_deletion"
	ActionDeletionMerged    AuditAction = "deletion_merged"
	ActionDeletionAbandoned AuditAction = "deletion_abandoned"
)

// AuditEntry 审计日志条目
type AuditEntry struct {
	Timestamp  time.Time   `json:"timestamp"`
	Operator   string      `json:"operator"`          // 操作者用户名
	Action     AuditAction `json:"action"`            // 操作类型
	ResourceID string      `json:"resource_id"`       // 资源标识 (template id 或 branch 名)
	Before     interface{} `json:"before,omitempty"`  // 操作前状态
	After      interface{} `json:"after,omitempty"`   // 操作后状态
	Details    string      `json:"details,omitempty"` // 额外详情
}

// AuditLogger 审计日志记录器接口
type AuditLogger interface {
	// LogAction 记录审计日志
	LogAction(operator string, action AuditAction, resourceID string, before, after interface{}, details string) error

	// LogActionSimple 记录简单审计日志 (不包含before/after)
	LogActionSimple(operator string, action AuditAction, resourceID string, details string) error
}

// FileAuditLogger 基于文件的审计日志实现，JSONL 格式，按大小轮转
type FileAuditLogger struct {
	out io.WriteCloser
	now func() time.Time
	mu  sync.Mutex
}

// NewFileAuditLogger 创建文件审计日志记录器，日志文件由 lumberjack 负责轮转
func NewFileAuditLogger(logPath string) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit logs directory: %w", err)
	}
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     90, // days
		Compress:   true,
	}
	return &FileAuditLogger{out: writer, now: time.Now}, nil
}

// LogAction 记录审计日志
func (f *FileAuditLogger) LogAction(operator string, action AuditAction, resourceID string, before, after interface{}, details string) error {
	entry := AuditEntry{
		Timestamp:  f.now().UTC(),
		Operator:   operator,
		Action:     action,
		ResourceID: resourceID,
		Before:     before,
		After:      after,
		Details:    details,
	}
	return f.writeEntry(entry)
}

// LogActionSimple 记录简单审计日志
func (f *FileAuditLogger) LogActionSimple(operator string, action AuditAction, resourceID string, details string) error {
	return f.LogAction(operator, action, resourceID, nil, nil, details)
}

// Close 关闭底层文件
func (f *FileAuditLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Close()
}

func (f *FileAuditLogger) writeEntry(entry AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// NopLogger 丢弃所有审计记录（未配置 AUDIT_LOG_PATH 时使用）
type NopLogger struct{}

func (NopLogger) LogAction(string, AuditAction, string, interface{}, interface{}, string) error {
	return nil
}

func (NopLogger) LogActionSimple(string, AuditAction, string, string) error { return nil }
