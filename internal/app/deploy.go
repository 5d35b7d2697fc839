package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/catalog"
	"github.com/blackwell-systems/snapledger/internal/output"
)

var (
	deployEnv       string
	deployCommit    string
	deployChangelog string
	deployBy        string

	rollbackEnv string
	latestEnv   string
	versionsEnv string

	deployCmd = &cobra.Command{
		Use:   "deploy <service> <version>",
		Short: "Record a deployment as the active version",
		Long: `Record <version> as the active version of <service> in an environment.
The previously active version is kept in the history as superseded.

The environment defaults to the configured one (production).`,
		Example: `  snapledger deploy api 1.4.2
  snapledger deploy api 1.4.3 --env staging --commit 9f1c2ab --changelog "fix retry loop"`,
		Args: cobra.ExactArgs(2),
		RunE: runDeploy,
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback <service>",
		Short: "Reactivate the previously deployed version",
		Long: `Mark the active version of <service> as rolled-back and reactivate the
version it superseded.

Rollback goes back exactly one step. A version that became active through a
rollback cannot be rolled back again until a new version is deployed.`,
		Args: cobra.ExactArgs(1),
		RunE: runRollback,
	}

	latestCmd = &cobra.Command{
		Use:   "latest <service>",
		Short: "Show the active version of a service",
		Args:  cobra.ExactArgs(1),
		RunE:  runLatest,
	}

	versionsCmd = &cobra.Command{
		Use:   "versions [service]",
		Short: "Show deployment history",
		Long: `Show deployment history, newest first. Without a service, list the active
version of every service in every environment.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runVersions,
	}
)

func init() {
	deployCmd.Flags().StringVar(&deployEnv, "env", "", "target environment (default from config)")
	deployCmd.Flags().StringVar(&deployCommit, "commit", "", "commit SHA of the deployed build")
	deployCmd.Flags().StringVar(&deployChangelog, "changelog", "", "changelog text")
	deployCmd.Flags().StringVar(&deployBy, "by", "", "who deployed (default from config)")

	rollbackCmd.Flags().StringVar(&rollbackEnv, "env", "", "environment (default from config)")
	latestCmd.Flags().StringVar(&latestEnv, "env", "", "environment (default from config)")
	versionsCmd.Flags().StringVar(&versionsEnv, "env", "", "only this environment")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.catalog.Deploy(catalog.DeployRequest{
		Service:     args[0],
		Version:     args[1],
		Environment: s.environment(deployEnv),
		CommitSHA:   deployCommit,
		Changelog:   deployChangelog,
		DeployedBy:  deployBy,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deployed %s %s to %s\n", rec.Service, rec.Version, rec.Environment)
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.catalog.Rollback(args[0], s.environment(rollbackEnv))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Rolled back %s in %s: %s → %s\n",
		res.Restored.Service, res.Restored.Environment, res.RolledBack.Version, res.Restored.Version)
	return nil
}

func runLatest(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	env := s.environment(latestEnv)
	rec, err := s.catalog.Latest(args[0], env)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s has no active version in %s: %w", args[0], env, catalog.ErrNoActiveVersion)
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderVersion(rec))
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 && versionsEnv == "" {
		active, err := s.catalog.Active()
		if err != nil {
			return err
		}
		fmt.Fprint(out, output.RenderVersionTable(active))
		return nil
	}

	service := ""
	if len(args) > 0 {
		service = args[0]
	}
	history, err := s.catalog.History(service, versionsEnv)
	if err != nil {
		return err
	}
	fmt.Fprint(out, output.RenderVersionTable(history))
	return nil
}
