// Command devseed creates user accounts directly in the database so a fresh
// environment has someone able to log in.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danya/gymcrm/app"
	"github.com/danya/gymcrm/config"
	"github.com/danya/gymcrm/internal/observability"
	"github.com/danya/gymcrm/models"
	"github.com/danya/gymcrm/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AccountCreator stores new accounts
type AccountCreator interface {
	CreateAccount(ctx context.Context, account services.NewAccount) (*models.User, error)
}

// opener connects to storage and returns a creator plus its cleanup
type opener func(ctx context.Context) (AccountCreator, func(), error)

type createOptions struct {
	firstName string
	lastName  string
	username  string
	password  string
	roles     []string
	stdin     bool
}

func main() {
	if err := newRootCmd(openDatabase).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "devseed",
		Short:         "Seed gymcrm accounts for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	users.AddCommand(newCreateCmd(open))
	root.AddCommand(users)

	return root
}

func newCreateCmd(open opener) *cobra.Command {
	opts := &createOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with a bcrypt-hashed password",
		Example: `  devseed users create --first-name Ada --last-name Admin --username admin --password s3cret --role ADMIN
  devseed users create --first-name John --last-name Doe --role TRAINEE --stdin < password.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := opts.account(cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			creator, cleanup, err := open(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := creator.CreateAccount(ctx, account)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			roles := make([]string, len(user.Roles))
			for i, r := range user.Roles {
				roles[i] = string(r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s) with roles %s\n",
				user.Username, user.ID, strings.Join(roles, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.firstName, "first-name", "", "First name of the user (required)")
	cmd.Flags().StringVar(&opts.lastName, "last-name", "", "Last name of the user (required)")
	cmd.Flags().StringVar(&opts.username, "username", "", "Username; generated as first.last when omitted")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password for the user (use --stdin to avoid shell history)")
	cmd.Flags().StringSliceVar(&opts.roles, "role", []string{}, "Role(s) to assign: ADMIN, TRAINER, TRAINEE (required)")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "Read password from stdin instead of --password")

	return cmd
}

func (o *createOptions) account(in io.Reader) (services.NewAccount, error) {
	if o.firstName == "" || o.lastName == "" {
		return services.NewAccount{}, fmt.Errorf("--first-name and --last-name are required")
	}

	roles, err := parseRoles(o.roles)
	if err != nil {
		return services.NewAccount{}, err
	}

	password := o.password
	if o.stdin {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			password = strings.TrimSpace(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return services.NewAccount{}, fmt.Errorf("failed to read password: %w", err)
		}
	}
	if password == "" {
		return services.NewAccount{}, fmt.Errorf("password is required (use --password or --stdin)")
	}

	return services.NewAccount{
		FirstName: o.firstName,
		LastName:  o.lastName,
		Username:  o.username,
		Password:  password,
		Roles:     roles,
	}, nil
}

// parseRoles upper-cases and de-duplicates role names, rejecting unknown ones
func parseRoles(input []string) ([]models.RoleName, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("at least one role must be specified using --role")
	}

	seen := make(map[models.RoleName]struct{}, len(input))
	var roles, invalid []models.RoleName
	for _, raw := range input {
		role := models.RoleName(strings.ToUpper(strings.TrimSpace(raw)))
		if !role.Valid() {
			invalid = append(invalid, role)
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid role(s) %v; valid roles are %v", invalid, models.AllRoles)
	}
	return roles, nil
}

func openDatabase(ctx context.Context) (AccountCreator, func(), error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	// seeding a fresh database needs the tables
	cfg.Database.InitSchema = true

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, "console")
	if err != nil {
		return nil, nil, err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		if err := deps.Close(ctx); err != nil {
			logger.Warn("failed to close dependencies", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return deps.UserService, cleanup, nil
}
