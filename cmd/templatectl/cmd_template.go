package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "列出模板",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)

			q := url.Values{}
			if v, _ := cmd.Flags().GetBool("eager"); v {
				q.Set("eager", "true")
			}
			if v, _ := cmd.Flags().GetString("query"); v != "" {
				q.Set("q", v)
			}
			path := "/api/templates"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			resp, err := client.Get(path)
			if err != nil {
				return err
			}
			if cfg.Output == "text" {
				return printTemplateTable(cmd.OutOrStdout(), resp)
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().Bool("eager", false, "同时加载模板内容")
	c.Flags().StringP("query", "q", "", "按名称/部门/应用代码模糊筛选")
	return c
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "获取单个模板（含内容）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(templatePath(args[0]))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "创建模板",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body, err := templateBody(cmd)
			if err != nil {
				return err
			}
			resp, err := NewAPIClient(cfg).Request(http.MethodPost, "/api/templates", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	addTemplateFlags(c)
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("department")
	_ = c.MarkFlagRequired("app-code")
	return c
}

func newUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update <id>",
		Short: "更新模板（未指定的元数据字段保持不变）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body, err := templateBody(cmd)
			if err != nil {
				return err
			}
			resp, err := NewAPIClient(cfg).Request(http.MethodPut, templatePath(args[0]), body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	addTemplateFlags(c)
	return c
}

func newDeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "delete <id>",
		Short: "删除模板（启用审批时创建删除 PR）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body := map[string]interface{}{}
			addOptionalString(cmd, body, "comment", "requestComment")
			resp, err := NewAPIClient(cfg).Request(http.MethodDelete, templatePath(args[0]), body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().StringP("comment", "m", "", "删除说明（写入 PR 描述）")
	return c
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "查看模板版本历史",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(templatePath(args[0], "history"))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newStructureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "structure",
		Short: "列出仓库中的部门与应用代码",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get("/api/bitbucket/structure")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func addTemplateFlags(c *cobra.Command) {
	c.Flags().String("name", "", "模板名称")
	c.Flags().String("department", "", "部门")
	c.Flags().String("app-code", "", "应用代码")
	c.Flags().String("content", "", "主提示词内容")
	c.Flags().String("content-file", "", "从文件读取主提示词内容")
	c.Flags().String("instructions", "", "附加说明")
	c.Flags().StringArray("example", nil, "示例，格式 \"输入=>输出\"，可重复")
}

// templateBody 由命令行标志组装创建/更新请求体
func templateBody(cmd *cobra.Command) (map[string]interface{}, error) {
	body := map[string]interface{}{}
	addOptionalString(cmd, body, "name")
	addOptionalString(cmd, body, "department")
	addOptionalString(cmd, body, "app-code", "appCode")
	addOptionalString(cmd, body, "content")
	addOptionalString(cmd, body, "instructions")

	if path, _ := cmd.Flags().GetString("content-file"); path != "" {
		if _, ok := body["content"]; ok {
			return nil, fmt.Errorf("--content and --content-file are mutually exclusive")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read content file: %w", err)
		}
		body["content"] = string(data)
	}

	raw, _ := cmd.Flags().GetStringArray("example")
	if len(raw) > 0 {
		examples := make([]map[string]string, 0, len(raw))
		for _, e := range raw {
			in, out, ok := strings.Cut(e, "=>")
			if !ok {
				return nil, fmt.Errorf("invalid --example %q: expected \"input=>output\"", e)
			}
			examples = append(examples, map[string]string{
				"input":  strings.TrimSpace(in),
				"output": strings.TrimSpace(out),
			})
		}
		body["examples"] = examples
	}
	return body, nil
}

// addOptionalString 如果命令行标志有值则添加到 body map
func addOptionalString(cmd *cobra.Command, body map[string]interface{}, flag string, jsonKeys ...string) {
	v, _ := cmd.Flags().GetString(flag)
	if v == "" {
		return
	}
	key := flag
	if len(jsonKeys) > 0 {
		key = jsonKeys[0]
	}
	body[key] = v
}
