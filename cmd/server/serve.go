// cmd/server/serve.go
package main

import (
	"fmt"
	"log"

	"github.com/Corphon/TranscriptEditor/internal/app"
	"github.com/Corphon/TranscriptEditor/internal/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the editor web server",
	RunE:  runServe,
}

func init() {
	// 不带子命令时默认启动服务器
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringP("port", "p", "", "Port to listen on (overrides PORT)")
	}

	rootCmd.AddCommand(serveCmd)
}

func runServe(command *cobra.Command, args []string) error {
	log.Println("🚀 启动转录编辑器服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if port, _ := command.Flags().GetString("port"); port != "" {
		baseConfig.Port = port
	}
	log.Printf("✅ 基础配置加载完成，端口: %s，环境: %s", baseConfig.Port, baseConfig.Environment)

	// 2. 创建必要的目录
	if err := app.CreateDirectories(baseConfig); err != nil {
		return err
	}
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化配置、日志、服务和路由
	if err := app.Initialize(baseConfig); err != nil {
		return err
	}
	log.Println("✅ 所有服务初始化完成")

	// 4. 启动服务器并等待停止信号
	return app.Run()
}
