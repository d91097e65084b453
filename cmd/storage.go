package cmd

import (
	"fmt"
	"text/tabwriter"

	"audiolib/storage"

	"github.com/spf13/cobra"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "存储后端管理",
}

var storageCheckCmd = &cobra.Command{
	Use:   "check [prefix...]",
	Short: "检查存储连接并统计各命名空间的占用",
	Long:  `连接配置的存储后端（local 或 minio），按前缀统计对象数量和总大小。默认统计 audio、covers 和 profiles。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to connect storage backend %q: %w", cfg.StorageBackend, err)
		}
		prefixes := args
		if len(prefixes) == 0 {
			prefixes = []string{"audio", "covers", "profiles"}
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "PREFIX\tOBJECTS\tSIZE\tLAST MODIFIED\n")
		for _, p := range prefixes {
			u, err := store.Usage(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("failed to read usage of %q: %w", p, err)
			}
			last := "-"
			if !u.LastModified.IsZero() {
				last = u.LastModified.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p, u.Objects, formatSize(u.Bytes), last)
		}
		return tw.Flush()
	},
}

// formatSize 格式化文件大小
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	storageCmd.AddCommand(storageCheckCmd)
	rootCmd.AddCommand(storageCmd)
}
