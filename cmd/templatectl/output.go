package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// printOutput 按指定格式输出响应数据
func printOutput(w io.Writer, format string, data []byte) error {
	if format == "json" {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			// 非 JSON 数据直接输出
			fmt.Fprintln(w, string(data))
			return nil
		}
		fmt.Fprintln(w, out.String())
		return nil
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// templateRow 列表输出所需字段
type templateRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	AppCode    string `json:"appCode"`
	Version    string `json:"version"`
	UpdatedBy  string `json:"updatedBy"`
}

// printTemplateTable text 模式下以表格输出模板列表
func printTemplateTable(w io.Writer, data []byte) error {
	var rows []templateRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse template list: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEPARTMENT\tAPP CODE\tNAME\tVERSION\tUPDATED BY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Department, r.AppCode, r.Name, r.Version, r.UpdatedBy)
	}
	return tw.Flush()
}
