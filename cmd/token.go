package cmd

import (
	"fmt"

	"audiolib/core/auth"
	"audiolib/model"

	"github.com/spf13/cobra"
)

var (
	tokenUserID int64
	tokenAdmin  bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "为指定用户签发访问令牌",
	Long:  `签发一个JWT访问令牌，便于使用curl调试需要认证的接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUserID <= 0 {
			return fmt.Errorf("--user-id is required")
		}
		role := model.RoleUser
		if tokenAdmin {
			role = model.RoleAdmin
		}
		tok, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTokenTTL).GenerateToken(&model.User{ID: tokenUserID, Role: role})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "user ID to embed in the token")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "issue an admin token")
	rootCmd.AddCommand(tokenCmd)
}
