package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
	"github.com/vs316/schema-weaver-sub001/internal/service"
	"go.yaml.in/yaml/v3"
)

// listCmd 列出团队的图
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出团队的图（最近更新在前）",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := core.Services.Sync.Diagrams()
			if len(list) == 0 {
				fmt.Println("📚 团队还没有图，先使用 'weaver create <name>' 创建")
				return nil
			}

			cyan := color.New(color.FgCyan)
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTABLES\tVERSION\tUPDATED")
			for _, d := range list {
				name := d.Name
				if d.IsLocked {
					name += " 🔒"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					cyan.Sprint(shortID(d.ID)), name, d.DiagramType, len(d.Tables), d.Version,
					d.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func createCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "创建空图",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := core.Services.Sync.CreateDiagram(cmd.Context(), strings.TrimSpace(args[0]), schema.DiagramType(typ))
			if err != nil {
				return err
			}
			color.Green("✅ 已创建 %s (%s)", d.Name, d.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(schema.DiagramERD), "图类型: erd|flowchart|sequence|architecture")
	return cmd
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "重命名图",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDiagram(args[0])
			if err != nil {
				return err
			}
			if d.IsLocked {
				return fmt.Errorf("图 %s 已锁定", d.Name)
			}
			name := strings.TrimSpace(args[1])
			if name == "" {
				return fmt.Errorf("名称不能为空")
			}
			core.Services.Sync.ScheduleSave(d.ID, schema.DiagramUpdate{Name: &name})
			color.Green("✅ %s → %s", d.Name, name)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "删除图",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDiagram(args[0])
			if err != nil {
				return err
			}
			if !yes {
				color.Yellow("⚠️  将删除 %s (%s)，确认请加 --yes", d.Name, d.ID)
				return nil
			}
			if err := core.Services.Sync.DeleteDiagram(cmd.Context(), d.ID); err != nil {
				return err
			}
			color.Green("✅ 已删除 %s", d.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "跳过确认")
	return cmd
}

// showCmd 打印表结构与连线几何
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "查看图的表、字段与连线",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDiagram(args[0])
			if err != nil {
				return err
			}
			printDiagram(d)
			return nil
		},
	}
}

func colorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "colorize <id>",
		Short: "按连通分量给未着色的表自动着色",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDiagram(args[0])
			if err != nil {
				return err
			}
			if d.IsLocked {
				return fmt.Errorf("图 %s 已锁定", d.Name)
			}

			colored := service.ApplyAutoColors(d.Tables, d.Relations)
			changed := 0
			for i := range colored {
				if !d.Tables[i].HasColor() && colored[i].HasColor() {
					changed++
				}
			}
			if changed == 0 {
				fmt.Println("没有需要着色的表")
				return nil
			}

			editor := core.Services.Editor
			if _, err := editor.Open(d.ID); err != nil {
				return err
			}
			if err := editor.Edit(func(snap *model.Snapshot) { snap.Tables = colored }); err != nil {
				return err
			}
			color.Green("✅ 已为 %d 张表着色", changed)
			return nil
		},
	}
}

// exportCmd 导出为 json 或 yaml；key 与 HTTP 接口一致
func exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "导出图（json|yaml）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDiagram(args[0])
			if err != nil {
				return err
			}
			b, err := encodeDiagram(d, format)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(b)
				return err
			}
			if err := os.WriteFile(output, b, 0o644); err != nil {
				return fmt.Errorf("写入导出文件失败: %w", err)
			}
			color.Green("✅ 已导出到 %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "导出格式: json|yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件（默认 stdout）")
	return cmd
}

func lockCmd() *cobra.Command {
	var unlock bool
	cmd := &cobra.Command{
		Use:   "lock <id>",
		Short: "锁定图，禁止编辑（--unlock 解锁）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDiagram(args[0])
			if err != nil {
				return err
			}
			locked := !unlock
			if err := core.Services.Sync.SaveDiagram(cmd.Context(), d.ID, schema.DiagramUpdate{IsLocked: &locked}); err != nil {
				return err
			}
			if locked {
				color.Green("🔒 已锁定 %s", d.Name)
			} else {
				color.Green("🔓 已解锁 %s", d.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unlock, "unlock", false, "解锁")
	return cmd
}

// resolveDiagram 支持完整 ID、唯一 ID 前缀或完整名称
func resolveDiagram(ref string) (*schema.Diagram, error) {
	list := core.Services.Sync.Diagrams()
	id, err := matchDiagram(list, ref)
	if err != nil {
		return nil, err
	}
	d := core.Services.Sync.LoadDiagram(id)
	if d == nil {
		return nil, fmt.Errorf("图不存在: %s", ref)
	}
	return d, nil
}

func matchDiagram(list []schema.Diagram, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("id 不能为空")
	}
	var byPrefix, byName []string
	for _, d := range list {
		if d.ID == ref {
			return d.ID, nil
		}
		if strings.HasPrefix(d.ID, ref) {
			byPrefix = append(byPrefix, d.ID)
		}
		if d.Name == ref {
			byName = append(byName, d.ID)
		}
	}
	switch {
	case len(byPrefix) == 1:
		return byPrefix[0], nil
	case len(byPrefix) > 1:
		return "", fmt.Errorf("ID 前缀 %q 匹配到 %d 张图", ref, len(byPrefix))
	case len(byName) == 1:
		return byName[0], nil
	case len(byName) > 1:
		return "", fmt.Errorf("名称 %q 匹配到 %d 张图，请使用 ID", ref, len(byName))
	}
	return "", fmt.Errorf("图不存在: %s", ref)
}

type exportDoc struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	DiagramType string           `json:"diagram_type"`
	Tables      []model.Table    `json:"tables"`
	Relations   []model.Relation `json:"relations"`
	Viewport    model.Viewport   `json:"viewport"`
	IsDarkMode  bool             `json:"is_dark_mode"`
	IsLocked    bool             `json:"is_locked"`
	Version     int64            `json:"version"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func encodeDiagram(d *schema.Diagram, format string) ([]byte, error) {
	snap := d.Snapshot()
	doc := exportDoc{
		ID:          d.ID,
		Name:        d.Name,
		DiagramType: string(d.DiagramType),
		Tables:      snap.Tables,
		Relations:   snap.Relations,
		Viewport:    snap.Viewport,
		IsDarkMode:  d.IsDarkMode,
		IsLocked:    d.IsLocked,
		Version:     d.Version,
		UpdatedAt:   d.UpdatedAt,
	}
	if doc.Tables == nil {
		doc.Tables = []model.Table{}
	}
	if doc.Relations == nil {
		doc.Relations = []model.Relation{}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化失败: %w", err)
	}
	switch strings.ToLower(format) {
	case "json":
		return append(b, '\n'), nil
	case "yaml", "yml":
		// 经 JSON 中转，保证 yaml 的 key 与 json 一致
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return nil, fmt.Errorf("序列化失败: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("序列化 yaml 失败: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("不支持的导出格式: %s", format)
	}
}

func printDiagram(d *schema.Diagram) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	bold.Printf("📐 %s", d.Name)
	gray.Printf("  %s · %s · v%d\n", d.ID, d.DiagramType, d.Version)
	if d.IsLocked {
		yellow.Println("🔒 已锁定")
	}
	fmt.Println("═══════════════════════════════════════")

	for _, t := range d.Tables {
		swatch := "  "
		if t.HasColor() {
			swatch = "● "
		}
		cyan.Printf("\n%s%s", swatch, t.Name)
		gray.Printf("  (%g, %g)", t.X, t.Y)
		if t.HasColor() {
			gray.Printf("  %s", *t.Color)
		}
		fmt.Println()
		for _, c := range t.Columns {
			flags := ""
			if c.IsPrimaryKey {
				flags += " PK"
			}
			if c.IsForeignKey {
				flags += " FK"
			}
			fmt.Printf("    • %-20s %-10s%s\n", c.Name, c.Type, yellow.Sprint(flags))
		}
	}

	if len(d.Relations) == 0 {
		return
	}
	idx := model.TableIndex(d.Tables)
	geo := service.ComputeGeometry(d.Tables, d.Relations)
	paths := make(map[string]string, len(geo))
	for _, g := range geo {
		paths[g.RelationID] = g.Path
	}

	fmt.Println("\n🔗 连线")
	for _, r := range d.Relations {
		src, dst := r.SourceTableID, r.TargetTableID
		if t, ok := idx[src]; ok {
			src = t.Name
		}
		if t, ok := idx[dst]; ok {
			dst = t.Name
		}
		line := fmt.Sprintf("  %s → %s", src, dst)
		if r.Label != "" {
			line += " [" + r.Label + "]"
		}
		if p, ok := paths[r.ID]; ok {
			fmt.Printf("%s  %s\n", line, gray.Sprint(p))
		} else {
			fmt.Printf("%s  %s\n", line, yellow.Sprint("(端点缺失，不渲染)"))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
