package cmd

import (
	"github.com/spf13/cobra"

	"meilibridge/pkg/util"
)

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   util.AppName,
		Short: "SQL 数据库到 Meilisearch 的自动同步连接器",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableNoDescFlag:   true,
			DisableDescriptions: true,
			HiddenDefaultCmd:    true,
		},
		Version: util.GetVersion().Version,
	}
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewGenerateCommand())
	cmd.AddCommand(NewValidateCommand())
	return cmd
}
