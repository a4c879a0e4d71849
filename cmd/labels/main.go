package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"mailinchat/backend/internal/config"
	"mailinchat/backend/internal/gmail"
	"mailinchat/backend/internal/logger"
)

// main 列出代理邮箱的全部标签，用于确认 inbox_label 配置。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Service.Name, cfg.Log))
	if err != nil {
		fmt.Printf("错误: 初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := gmail.NewClient(ctx, cfg.Gmail, log)
	if err != nil {
		log.Fatal("failed to initialize gmail client", zap.Error(err))
	}

	labels, err := client.ListLabels(ctx)
	if err != nil {
		log.Fatal("failed to list labels", zap.Error(err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tTOTAL\tUNREAD")
	for _, l := range labels {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", l.ID, l.Name, l.Type, l.MessagesTotal, l.MessagesUnread)
	}
	_ = w.Flush()
}
