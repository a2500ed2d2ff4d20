package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meilibridge/pkg/connector"
	"meilibridge/pkg/db"
	"meilibridge/pkg/meili"
	"meilibridge/pkg/util"
)

func NewGenerateCommand() *cobra.Command {
	dbCfg := db.NewDefaultDBConfig()
	meiliCfg := meili.NewDefaultMeiliConfig()
	var output string
	var pollInterval int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "扫描数据库并生成同步配置文件",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cfg, err := connector.GenerateConfig(ctx, dbCfg, meiliCfg, pollInterval)
			if err != nil {
				zap.S().Errorf("生成配置失败: %v", err)
				return
			}
			if err := connector.WriteConfig(cfg, output); err != nil {
				zap.S().Errorf(err.Error())
				return
			}
		},
		Version: util.GetVersion().Version,
	}

	cmd.Flags().StringVar(&dbCfg.Driver, "driver", dbCfg.Driver, "数据库类型 (sqlite/mysql/postgres)")
	cmd.Flags().StringVar(&dbCfg.Host, "host", dbCfg.Host, "数据库地址")
	cmd.Flags().IntVar(&dbCfg.Port, "port", dbCfg.Port, "数据库端口")
	cmd.Flags().StringVar(&dbCfg.Username, "username", "", "数据库用户名")
	cmd.Flags().StringVar(&dbCfg.Password, "password", "", "数据库密码")
	cmd.Flags().StringVar(&dbCfg.Database, "database", "", "数据库名称")
	cmd.Flags().StringVar(&dbCfg.Path, "path", "", "sqlite 数据库文件路径")
	cmd.Flags().StringVar(&meiliCfg.Host, "meili-host", meiliCfg.Host, "Meilisearch 服务地址")
	cmd.Flags().StringVar(&meiliCfg.APIKey, "meili-key", "", "Meilisearch API Key")
	cmd.Flags().StringVarP(&output, "output", "o", "./etc/config.yaml", "生成的配置文件路径")
	cmd.Flags().IntVar(&pollInterval, "poll-interval", 0, "轮询间隔（秒），默认 60")
	return cmd
}
