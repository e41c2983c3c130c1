package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jobcoach/internal/log"
	"github.com/teslashibe/go-jobcoach/pkg/jobs"
	"github.com/teslashibe/go-jobcoach/pkg/resume"
)

type recommendOptions struct {
	profile   string
	resume    string
	area      string
	date      string
	summarize bool
}

func newRecommendCmd(root *rootOptions) *cobra.Command {
	opts := &recommendOptions{}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend job openings for a profile or resume",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecommend(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.profile, "profile", "", "Free-text profile")
	f.StringVar(&opts.resume, "resume", "", "Resume file (.pdf or .docx), summarized by the backend")
	f.StringVar(&opts.area, "area", "", "Preferred work area")
	f.StringVar(&opts.date, "date", "", "Posting date YYYYMMDD (default today)")
	f.BoolVar(&opts.summarize, "summarize", false, "Summarize the free-text profile before matching")
	cmd.MarkFlagsMutuallyExclusive("profile", "resume")
	return cmd
}

func runRecommend(cmd *cobra.Command, root *rootOptions, opts *recommendOptions) error {
	if opts.profile == "" && opts.resume == "" {
		return errors.New("one of --profile or --resume is required")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := jobs.New(jobs.WithBaseURL(root.backendURL), jobs.WithLogger(log.Component("jobs")))
	if err != nil {
		return err
	}

	profile := opts.profile
	switch {
	case opts.resume != "":
		doc, err := resume.Load(opts.resume)
		if err != nil {
			return err
		}
		log.L().Debug("resume loaded", "name", doc.Name, "pages", doc.Pages, "chars", len(doc.Text))

		summary, err := client.UploadResume(ctx, doc)
		if err != nil {
			return fmt.Errorf("summarize resume: %w", err)
		}
		profile = summary.Summary
		fmt.Fprintf(out, "Summary: %s\n\n", profile)

	case opts.summarize:
		summary, err := client.Summarize(ctx, jobs.SummarizeRequest{Text: opts.profile})
		if err != nil {
			return fmt.Errorf("summarize profile: %w", err)
		}
		profile = summary.Summary
		fmt.Fprintf(out, "Summary: %s\n\n", profile)
	}

	recs, err := client.Recommend(ctx, jobs.RecommendRequest{Profile: profile, Area: opts.area, Date: opts.date})
	if err != nil {
		return fmt.Errorf("recommend: %w", err)
	}

	if len(recs) == 0 {
		fmt.Fprintln(out, "No matching job openings.")
		return nil
	}
	for i, r := range recs {
		fmt.Fprintf(out, "%d. %s\n", i+1, r.Title)
		for _, line := range strings.Split(strings.TrimSpace(r.Description), "\n") {
			fmt.Fprintf(out, "   %s\n", line)
		}
	}
	return nil
}
