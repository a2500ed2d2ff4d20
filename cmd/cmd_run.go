package cmd

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meilibridge/pkg/connector"
	"meilibridge/pkg/signals"
	"meilibridge/pkg/util"
)

var cfg *connector.Config

func NewRunCommand() *cobra.Command {
	var configFilePath string
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "启动同步服务",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = connector.TryLoadFromDisk(configFilePath)
			if err != nil {
				return errors.Errorf("读取本地配置文件错误:%s", err.Error())
			}
			if cfg == nil {
				return errors.Errorf("配置文件不存在: %s", configFilePath)
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return errors.Errorf("本地配置文件验证错误:%s", stderrors.Join(errs...))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			if err := runConnector(cfg, once); err != nil {
				zap.S().Errorf(err.Error())
				return
			}
		},
		Version: util.GetVersion().Version,
	}
	cmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "./etc/config.yaml", "配置文件路径")
	cmd.Flags().BoolVar(&once, "once", false, "每张表同步一次后退出")
	return cmd
}

func runConnector(cfg *connector.Config, once bool) error {
	zap.S().Infof("***  %s %s ***", util.AppName, util.GetVersion().Version)

	ctx := signals.SetupSignalHandler()
	conn, err := connector.New(ctx, cfg)
	if err != nil {
		return err
	}

	if once {
		return conn.RunOnce(ctx)
	}
	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	zap.S().Info("同步服务已退出")
	return nil
}
