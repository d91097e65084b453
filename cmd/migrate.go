package cmd

import (
	"audiolib/db"

	"github.com/spf13/cobra"
)

var migrateVerbose bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表结构",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.ConnectGormDB(cfg, migrateVerbose)
		if err != nil {
			return err
		}
		defer db.CloseGormDB(gdb)
		return db.AutoMigrateModels(gdb)
	},
}

func init() {
	migrateCmd.Flags().BoolVarP(&migrateVerbose, "verbose", "v", false, "log every SQL statement")
	rootCmd.AddCommand(migrateCmd)
}
