package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vs316/schema-weaver-sub001/internal/bootstrap"
	"github.com/vs316/schema-weaver-sub001/internal/pkg/buildinfo"
	"github.com/vs316/schema-weaver-sub001/internal/service"
)

var (
	cfgFile string
	core    *bootstrap.Core
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "weaver",
		Short:        "schema-weaver - 团队共享的 ERD 图管理工具",
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			core, err = bootstrap.NewCore(cfgFile)
			if err != nil {
				return fmt.Errorf("初始化失败: %w", err)
			}
			if err := core.Services.Sync.Init(cmd.Context()); err != nil {
				return err
			}
			if core.Services.Sync.Status() == service.SyncOnboarding {
				color.Yellow("⚠️  当前用户尚未加入团队，请在配置中设置 auth.default_team_id")
				return fmt.Errorf("未加入团队")
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core == nil {
				return
			}
			// 等待防抖中的保存落库
			if err := core.Services.Sync.Flush(context.Background()); err != nil {
				slog.Warn("保存未完成", "error", err)
			}
			_ = core.Close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(colorizeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(lockCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.Red("❌ %v", err)
		if core != nil {
			_ = core.Close()
		}
		os.Exit(1)
	}
}
