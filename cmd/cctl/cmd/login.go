package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paroxp/concourse-go-sdk/concourse"
)

func newLoginCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and print who the server thinks you are",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			user, err := client.GetUserInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "logged in to %s\n", client.APIEndpoint())

			// The id_token is absent on some auth backends; the user endpoint still answered.
			if claims, err := client.TokenManager().IDTokenClaims(); err == nil {
				fmt.Fprintf(out, "user: %s\n", firstNonEmpty(claims.PreferredUsername, claims.Name, user.UserName))
				fmt.Fprintf(out, "email: %s\n", firstNonEmpty(claims.Email, user.Email))
				fmt.Fprintf(out, "connector: %s\n", firstNonEmpty(claims.ConnectorID, user.Connector))
			} else {
				fmt.Fprintf(out, "user: %s\n", user.UserName)
				fmt.Fprintf(out, "email: %s\n", user.Email)
				fmt.Fprintf(out, "connector: %s\n", user.Connector)
			}

			fmt.Fprintf(out, "teams: %s\n", formatTeamRoles(user.Teams))
			return nil
		}),
	}
}

func newInfoCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			info, err := client.GetInfo(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "concourse version: %s\n", info.Version)
			fmt.Fprintf(out, "worker version: %s\n", info.WorkerVersion)
			if info.ClusterName != "" {
				fmt.Fprintf(out, "cluster: %s\n", info.ClusterName)
			}
			return nil
		}),
	}
}

func formatTeamRoles(teams map[string][]string) string {
	if len(teams) == 0 {
		return "none"
	}

	names := make([]string, 0, len(teams))
	for name := range teams {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%s)", name, strings.Join(teams[name], ", ")))
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
