package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"audiolib/core/auth"
	"audiolib/db"
	"audiolib/logger"
	"audiolib/model"
	"audiolib/repository"

	"github.com/spf13/cobra"
)

var (
	userName     string
	userEmail    string
	userPassword string
	userAdmin    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "用户管理",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "创建用户（可创建管理员）",
	Long: `在 MySQL 中创建用户，需要可用的数据库连接。
使用 --memory 启动的服务不读取 MySQL，其管理员请通过 ADMIN_EMAIL 和 ADMIN_PASSWORD 环境变量在启动时创建。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlDB, err := db.ConnectDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		role := model.RoleUser
		if userAdmin {
			role = model.RoleAdmin
		}
		u, err := createUser(cmd.Context(), repository.NewMySQLUserRepository(sqlDB), userName, userEmail, userPassword, role)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %d <%s>\n", u.Role, u.ID, u.Email)
		return nil
	},
}

func createUser(ctx context.Context, users repository.UserRepository, name, email, password string, role model.Role) (*model.User, error) {
	if email == "" || len(password) < 6 || len(password) > auth.MaxPasswordBytes {
		return nil, fmt.Errorf("an email and a password of 6 to %d bytes are required", auth.MaxPasswordBytes)
	}
	hash, err := auth.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Name: name, Email: strings.ToLower(strings.TrimSpace(email)), PasswordHash: hash, Role: role}
	if _, err := users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// seedAdmin creates the admin named by ADMIN_EMAIL and ADMIN_PASSWORD unless
// the address is already registered. Existing accounts are never promoted.
func seedAdmin(ctx context.Context, users repository.UserRepository) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	u, err := createUser(ctx, users, "admin", cfg.AdminEmail, cfg.AdminPassword, model.RoleAdmin)
	if errors.Is(err, repository.ErrEmailTaken) {
		logger.Info("管理员账号已存在", logger.String("email", cfg.AdminEmail))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	logger.Info("已创建管理员账号", logger.Int64("userId", u.ID), logger.String("email", u.Email))
	return nil
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "admin", "display name")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "login password")
	userCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant the admin role")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
