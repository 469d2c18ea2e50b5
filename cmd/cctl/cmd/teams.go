package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/paroxp/concourse-go-sdk/concourse"
)

func newTeamsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List the teams you can see",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			teams, err := client.ListTeams(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, team := range teams {
				fmt.Fprintf(w, "%d\t%s\n", team.ID, team.Name)
			}
			return w.Flush()
		}),
	}
}

type setTeamFlags struct {
	team        string
	role        string
	localUsers  []string
	githubUsers []string
	githubOrgs  []string
	oidcGroups  []string
}

func newSetTeamCommand(o *options) *cobra.Command {
	flags := &setTeamFlags{}

	cmd := &cobra.Command{
		Use:   "set-team",
		Short: "Create a team or replace its auth configuration",
		Long: heredoc.Doc(`
			Create a team or replace its auth configuration.

			The given users and groups are granted --role and replace whatever
			auth the team had before. At least one user or group is required.
		`),
		Example: heredoc.Doc(`
			cctl set-team --team platform --local-user admin --github-org acme:platform
			cctl set-team --team readers --role viewer --oidc-group everyone
		`),
		Args: cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			auth, err := flags.auth()
			if err != nil {
				return err
			}

			team, err := client.SetTeam(cmd.Context(), concourse.TeamRef{Name: flags.team}, auth)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team %s configured (id %d)\n", team.Name, team.ID)
			return nil
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&flags.team, "team", "t", "", "Team name")
	f.StringVar(&flags.role, "role", "owner", "Role to grant: owner, member, pipeline-operator or viewer")
	f.StringSliceVar(&flags.localUsers, "local-user", nil, "Local user to grant the role (repeatable)")
	f.StringSliceVar(&flags.githubUsers, "github-user", nil, "GitHub user to grant the role (repeatable)")
	f.StringSliceVar(&flags.githubOrgs, "github-org", nil, "GitHub org or org:team to grant the role (repeatable)")
	f.StringSliceVar(&flags.oidcGroups, "oidc-group", nil, "OIDC group to grant the role (repeatable)")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}

func (f *setTeamFlags) auth() (concourse.TeamAuth, error) {
	switch f.role {
	case "owner", "member", "pipeline-operator", "viewer":
	default:
		return nil, fmt.Errorf("unknown role %q", f.role)
	}

	var role concourse.RoleAuth
	role.Users = append(role.Users, prefixed("local", f.localUsers)...)
	role.Users = append(role.Users, prefixed("github", f.githubUsers)...)
	role.Groups = append(role.Groups, prefixed("github", f.githubOrgs)...)
	role.Groups = append(role.Groups, prefixed("oidc", f.oidcGroups)...)

	if len(role.Users) == 0 && len(role.Groups) == 0 {
		return nil, errors.New("no users or groups given: the team would be unreachable")
	}
	return concourse.TeamAuth{f.role: role}, nil
}

func prefixed(connector string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, connector+":"+name)
	}
	return out
}

func newDestroyTeamCommand(o *options) *cobra.Command {
	var team string

	cmd := &cobra.Command{
		Use:   "destroy-team",
		Short: "Delete a team and all of its pipelines",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			if err := client.DeleteTeam(cmd.Context(), concourse.TeamRef{Name: team}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team %s destroyed\n", team)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&team, "team", "t", "", "Team name")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}
