package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/paroxp/concourse-go-sdk/concourse"
)

func newBuildsCommand(o *options) *cobra.Command {
	flags := &pipelineFlags{}
	cmd := newPipelineCommand("builds", "List a pipeline's builds, newest first", flags)

	cmd.RunE = o.run(func(cmd *cobra.Command, client *concourse.Client) error {
		builds, err := client.ListPipelineBuilds(cmd.Context(), flags.ref())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tJOB\tBUILD\tSTATUS\tSTARTED")
		for _, b := range builds {
			started := "n/a"
			if t := b.Started(); !t.IsZero() {
				started = t.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", b.ID, b.JobName, b.Name, b.Status, started)
		}
		return w.Flush()
	})

	return cmd
}

func newTriggerJobCommand(o *options) *cobra.Command {
	var (
		job   string
		team  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "trigger-job",
		Short: "Start a new build of a job",
		Example: heredoc.Doc(`
			cctl trigger-job --job main/hello-world/hello --watch
			cctl trigger-job --team main --job hello-world/hello
		`),
		Args: cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			ref, err := parseJobRef(job, team)
			if err != nil {
				return err
			}

			build, err := client.CreateJobBuild(cmd.Context(), ref)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s/%s #%s (build %d)\n", ref.PipelineName, ref.Name, build.Name, build.ID)

			if !watch {
				return nil
			}
			return watchBuild(cmd.Context(), client, build.Ref(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&job, "job", "j", "", "Job as team/pipeline/job, or pipeline/job with --team")
	f.StringVarP(&team, "team", "t", "main", "Team, when --job does not name one")
	f.BoolVarP(&watch, "watch", "w", false, "Stream the build's output until it finishes")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

func parseJobRef(job, team string) (concourse.JobRef, error) {
	parts := strings.Split(job, "/")
	for _, part := range parts {
		if part == "" {
			return concourse.JobRef{}, fmt.Errorf("invalid job %q: want team/pipeline/job or pipeline/job", job)
		}
	}

	switch len(parts) {
	case 3:
		return concourse.JobRef{TeamName: parts[0], PipelineName: parts[1], Name: parts[2]}, nil
	case 2:
		return concourse.JobRef{TeamName: team, PipelineName: parts[0], Name: parts[1]}, nil
	default:
		return concourse.JobRef{}, fmt.Errorf("invalid job %q: want team/pipeline/job or pipeline/job", job)
	}
}

func newWatchCommand(o *options) *cobra.Command {
	var buildID int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream a build's output until it finishes",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			return watchBuild(cmd.Context(), client, concourse.BuildRef{ID: buildID}, cmd.OutOrStdout(), cmd.ErrOrStderr())
		}),
	}

	cmd.Flags().IntVarP(&buildID, "build", "b", 0, "Build ID")
	_ = cmd.MarkFlagRequired("build")

	return cmd
}

func newAbortBuildCommand(o *options) *cobra.Command {
	var buildID int

	cmd := &cobra.Command{
		Use:   "abort-build",
		Short: "Abort a running or pending build",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, client *concourse.Client) error {
			if err := client.AbortBuild(cmd.Context(), concourse.BuildRef{ID: buildID}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "build %d aborted\n", buildID)
			return nil
		}),
	}

	cmd.Flags().IntVarP(&buildID, "build", "b", 0, "Build ID")
	_ = cmd.MarkFlagRequired("build")

	return cmd
}

// watchBuild copies the build's log output to out until the end event. It fails
// unless the last status the stream reported was succeeded.
func watchBuild(ctx context.Context, client *concourse.Client, build concourse.BuildRef, out, errOut io.Writer) error {
	stream, err := client.BuildEvents(ctx, build)
	if err != nil {
		return err
	}
	defer stream.Close()

	var status concourse.BuildStatus
	for stream.Next() {
		event := stream.Event()
		if event.IsEnd() {
			break
		}

		be, err := event.Decode()
		if err != nil {
			return err
		}

		switch be.Event {
		case concourse.BuildEventLog:
			logEvent, err := be.Log()
			if err != nil {
				return err
			}
			fmt.Fprint(out, logEvent.Payload)
		case concourse.BuildEventError:
			failure, err := be.Failure()
			if err != nil {
				return err
			}
			fmt.Fprintln(errOut, failure.Message)
		case concourse.BuildEventStatus:
			s, err := be.Status()
			if err != nil {
				return err
			}
			status = s.Status
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("event stream for build %s broke off: %w", build, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if status != concourse.BuildStatusSucceeded {
		if status == "" {
			status = "unknown"
		}
		return fmt.Errorf("build %s %s", build, status)
	}
	fmt.Fprintf(out, "build %s succeeded\n", build)
	return nil
}
