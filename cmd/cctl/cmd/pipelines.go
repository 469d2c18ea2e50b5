package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/paroxp/concourse-go-sdk/concourse"
)

type pipelineFlags struct {
	team     string
	pipeline string
}

func (p *pipelineFlags) addFlags(f *pflag.FlagSet) {
	f.StringVarP(&p.team, "team", "t", "main", "Team the pipeline belongs to")
	f.StringVarP(&p.pipeline, "pipeline", "p", "", "Pipeline name")
}

func (p *pipelineFlags) ref() concourse.PipelineRef {
	return concourse.PipelineRef{Name: p.pipeline, TeamName: p.team}
}

// newPipelineCommand builds a command that takes --team and a required --pipeline.
func newPipelineCommand(use, short string, flags *pipelineFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}
	flags.addFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}

func newPipelinesCommand(o *options) *cobra.Command {
	var team string

	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List a team's pipelines",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			pipelines, err := client.ListPipelines(cmd.Context(), concourse.TeamRef{Name: team})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPAUSED\tPUBLIC")
			for _, p := range pipelines {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, yesNo(p.Paused), yesNo(p.Public))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVarP(&team, "team", "t", "main", "Team name")

	return cmd
}

func newGetPipelineCommand(o *options) *cobra.Command {
	flags := &pipelineFlags{}
	cmd := newPipelineCommand("get-pipeline", "Print a pipeline's configuration as YAML", flags)

	cmd.RunE = o.run(func(cmd *cobra.Command, client *concourse.Client) error {
		config, version, err := client.GetPipelineConfig(cmd.Context(), flags.ref())
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("could not encode configuration: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "config version: %s\n", version)
		_, err = cmd.OutOrStdout().Write(out)
		return err
	})

	return cmd
}

func newSetPipelineCommand(o *options) *cobra.Command {
	flags := &pipelineFlags{}
	var (
		configPath   string
		checkVersion bool
	)

	cmd := newPipelineCommand("set-pipeline", "Create or update a pipeline from a YAML file", flags)
	cmd.Long = heredoc.Doc(`
		Create or update a pipeline from a YAML file.

		With --check-version the current config version is read first and sent
		with the update, so the update fails if someone else changed the
		pipeline in between.
	`)
	cmd.Example = heredoc.Doc(`
		cctl set-pipeline --pipeline hello-world --config ci/pipeline.yml
	`)

	cmd.RunE = o.run(func(cmd *cobra.Command, client *concourse.Client) error {
		config, err := loadPipelineConfig(configPath)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ref := flags.ref()

		var version string
		if checkVersion {
			_, version, err = client.GetPipelineConfig(ctx, ref)
			if err != nil && !concourse.IsNotFound(err) {
				return err
			}
		}

		failures, err := client.SetPipelineConfig(ctx, ref, *config, version)
		if concourse.IsConflict(err) {
			return errors.New("pipeline was changed by someone else since its version was read; try again")
		}
		if err != nil {
			return err
		}

		for _, warning := range failures.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", warning.Type, warning.Message)
		}
		if failures.HasErrors() {
			for _, msg := range failures.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
			}
			return fmt.Errorf("configuration for pipeline %s is invalid", ref.Name)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s/%s configured\n", ref.TeamName, ref.Name)
		return nil
	})

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to the pipeline YAML")
	f.BoolVar(&checkVersion, "check-version", false, "Fail if the pipeline changed since it was read")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func loadPipelineConfig(path string) (*concourse.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read pipeline config: %w", err)
	}

	var config concourse.PipelineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return &config, nil
}

func newDestroyPipelineCommand(o *options) *cobra.Command {
	flags := &pipelineFlags{}
	cmd := newPipelineCommand("destroy-pipeline", "Delete a pipeline and its build history", flags)

	cmd.RunE = o.run(func(cmd *cobra.Command, client *concourse.Client) error {
		if err := client.DeletePipeline(cmd.Context(), flags.ref()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s/%s destroyed\n", flags.team, flags.pipeline)
		return nil
	})

	return cmd
}

func newPausePipelineCommand(o *options, pause bool) *cobra.Command {
	flags := &pipelineFlags{}
	use, short, done := "unpause-pipeline", "Let a pipeline schedule builds again", "unpaused"
	if pause {
		use, short, done = "pause-pipeline", "Stop a pipeline from scheduling builds", "paused"
	}
	cmd := newPipelineCommand(use, short, flags)

	cmd.RunE = o.run(func(cmd *cobra.Command, client *concourse.Client) error {
		var err error
		if pause {
			err = client.PausePipeline(cmd.Context(), flags.ref())
		} else {
			err = client.UnpausePipeline(cmd.Context(), flags.ref())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s/%s %s\n", flags.team, flags.pipeline, done)
		return nil
	})

	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
