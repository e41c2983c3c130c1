package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jobcoach/internal/log"
	"github.com/teslashibe/go-jobcoach/pkg/jobs"
)

type questionsOptions struct {
	job   string
	speak bool
	out   string
}

func newQuestionsCmd(root *rootOptions) *cobra.Command {
	opts := &questionsOptions{}

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Generate interview questions for a job description",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuestions(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.job, "job", "", "Job description (required)")
	f.BoolVar(&opts.speak, "speak", false, "Synthesize and download audio for every question")
	f.StringVar(&opts.out, "out", "questions", "Directory for downloaded audio")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func runQuestions(cmd *cobra.Command, root *rootOptions, opts *questionsOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := jobs.New(jobs.WithBaseURL(root.backendURL), jobs.WithLogger(log.Component("jobs")))
	if err != nil {
		return err
	}

	questions, err := client.GenerateQuestions(ctx, jobs.QuestionsRequest{JobDescription: opts.job})
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}
	if len(questions) == 0 {
		return errors.New("backend returned no questions")
	}
	for i, q := range questions {
		fmt.Fprintf(out, "%d. %s\n", i+1, q)
	}

	if !opts.speak {
		return nil
	}

	spoken, err := client.SpeakAll(ctx, len(questions))
	if err != nil {
		return fmt.Errorf("speech: %w", err)
	}

	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return err
	}
	for _, s := range spoken {
		name := path.Base(s.AudioURL)
		if name == "." || name == "/" {
			name = fmt.Sprintf("question_%d.mp3", s.Index)
		}
		file := filepath.Join(opts.out, name)
		if err := os.WriteFile(file, s.Audio, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", file)
	}
	return nil
}
