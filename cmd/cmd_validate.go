package cmd

import (
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meilibridge/pkg/connector"
	"meilibridge/pkg/util"
)

func NewValidateCommand() *cobra.Command {
	var configFilePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "校验配置文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := connector.TryLoadFromDisk(configFilePath)
			if err != nil {
				return errors.Errorf("读取本地配置文件错误:%s", err.Error())
			}
			if cfg == nil {
				return errors.Errorf("配置文件不存在: %s", configFilePath)
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return errors.Errorf("本地配置文件验证错误:%s", stderrors.Join(errs...))
			}
			zap.S().Infof("配置文件校验通过: %s（共 %d 张表）", configFilePath, len(cfg.Tables))
			return nil
		},
		Version: util.GetVersion().Version,
	}
	cmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "./etc/config.yaml", "配置文件路径")
	return cmd
}
