package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/memberpanel/memberpanel/config"
	"github.com/memberpanel/memberpanel/database"
	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/crypto"
	"github.com/memberpanel/memberpanel/web"
	"github.com/memberpanel/memberpanel/web/service"

	"github.com/spf13/cobra"
)

const cliActor = "cli"

func initLogger() {
	level, err := logger.ParseLevel(config.GetLogLevel())
	if err != nil {
		log.Fatal(err)
	}
	logger.InitLogger(level)
}

func initDB() error {
	return database.InitDB(config.GetDatabaseConfig())
}

func runWebServer() {
	log.Printf("%v %v", config.GetName(), config.GetVersion())
	initLogger()

	if err := initDB(); err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			logger.Warning("close database err:", err)
		}
	}()

	server := web.NewServer(database.GetDB())
	if err := server.Start(); err != nil {
		log.Println(err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	// Trap shutdown signals
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, os.Interrupt)
	for {
		sig := <-sigCh

		switch sig {
		case syscall.SIGHUP:
			logger.Info("Received SIGHUP, restarting web server")
			if err := server.Stop(); err != nil {
				logger.Warning("stop server err:", err)
			}
			server = web.NewServer(database.GetDB())
			if err := server.Start(); err != nil {
				log.Println(err)
				return
			}
		default:
			logger.Info("Received ", sig, ", shutting down")
			if err := server.Stop(); err != nil {
				logger.Warning("stop server err:", err)
			}
			return
		}
	}
}

func showSetting() {
	dbConfig := config.GetDatabaseConfig()
	redisAddr := config.GetRedisAddr()
	if redisAddr == "" {
		redisAddr = "embedded"
	}

	fmt.Println("current panel settings as follows:")
	fmt.Println("version:", config.GetName(), config.GetVersion())
	fmt.Println("listen:", config.GetListen())
	fmt.Println("port:", config.GetPort())
	fmt.Println("domain:", config.GetDomain())
	fmt.Println("database:", dbConfig.Type)
	if dbConfig.IsSQLite() {
		fmt.Println("database path:", dbConfig.SQLite.Path)
	} else {
		fmt.Printf("database host: %s:%d/%s\n", dbConfig.Postgres.Host, dbConfig.Postgres.Port, dbConfig.Postgres.Database)
	}
	fmt.Println("redis:", redisAddr)
	fmt.Println("session secret set:", config.GetSessionSecret() != "")
	fmt.Println("bcrypt cost:", config.GetBcryptCost())
	fmt.Println("login rate:", config.GetLoginRate())
	fmt.Println("audit retention days:", config.GetAuditRetentionDays())
}

func setRole(email string, role model.Role) {
	if err := initDB(); err != nil {
		fmt.Println(err)
		return
	}
	db := database.GetDB()
	roles := service.NewRoleService(service.NewUserService(db), service.NewAuditLogService(db))

	var err error
	if role == model.RoleAdmin {
		err = roles.Promote(context.Background(), cliActor, email, "")
	} else {
		err = roles.Demote(context.Background(), cliActor, email, "")
	}
	if err != nil {
		fmt.Printf("set role of %s to %s failed: %v\n", email, role, err)
		return
	}
	fmt.Printf("set role of %s to %s success\n", email, role)
}

func createAdmin(name, email, password string) {
	if email == "" || password == "" {
		fmt.Println("email and password are required")
		return
	}
	if err := initDB(); err != nil {
		fmt.Println(err)
		return
	}

	hash, err := crypto.NewHasher(config.GetBcryptCost()).Hash(password)
	if err != nil {
		fmt.Println("hash password failed:", err)
		return
	}
	err = service.NewUserService(database.GetDB()).CreateUser(context.Background(), &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		fmt.Println("create admin failed:", err)
		return
	}
	fmt.Println("create admin success:", email)
}

func listUsers() {
	if err := initDB(); err != nil {
		fmt.Println(err)
		return
	}
	users := service.NewUserService(database.GetDB())
	all, err := users.ListAll(context.Background())
	if err != nil {
		fmt.Println("list users failed:", err)
		return
	}
	for _, u := range all {
		fmt.Printf("%d\t%s\t%s\t%s\n", u.Id, u.Email, u.Role, u.Name)
	}
	admins, err := users.CountAdmins(context.Background())
	if err != nil {
		fmt.Println("count admins failed:", err)
		return
	}
	fmt.Printf("%d users, %d admins\n", len(all), admins)
}

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	var rootCmd = &cobra.Command{
		Use: config.GetName(),
	}

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the web server",
		Run: func(cmd *cobra.Command, args []string) {
			runWebServer()
		},
	}

	var settingCmd = &cobra.Command{
		Use:   "setting",
		Short: "Inspect settings",
	}

	var showCmd = &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		Run: func(cmd *cobra.Command, args []string) {
			showSetting()
		},
	}

	settingCmd.AddCommand(showCmd)

	var userCmd = &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var promoteCmd = &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant the admin role",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setRole(args[0], model.RoleAdmin)
		},
	}

	var demoteCmd = &cobra.Command{
		Use:   "demote <email>",
		Short: "Revoke the admin role",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setRole(args[0], model.RoleUser)
		},
	}

	var createAdminCmd = &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Run: func(cmd *cobra.Command, args []string) {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			createAdmin(name, email, password)
		},
	}

	createAdminCmd.Flags().String("name", "admin", "set admin display name")
	createAdminCmd.Flags().String("email", "", "set admin email")
	createAdminCmd.Flags().String("password", "", "set admin password")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Run: func(cmd *cobra.Command, args []string) {
			listUsers()
		},
	}

	userCmd.AddCommand(promoteCmd, demoteCmd, createAdminCmd, listCmd)

	rootCmd.AddCommand(runCmd, settingCmd, userCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
