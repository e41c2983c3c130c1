// Command jobcoach is the job coaching client: live interview confidence
// analysis, job recommendations, interview questions, and the bundled
// analysis server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jobcoach/internal/config"
	"github.com/teslashibe/go-jobcoach/internal/log"
)

type rootOptions struct {
	logLevel   string
	backendURL string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "jobcoach",
		Short:         "Job coaching client and analysis server",
		Long:          "jobcoach runs mock interview sessions with live confidence analysis, fetches job recommendations and interview questions, and serves the frame analysis endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			log.Init(opts.logLevel)
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.backendURL, "backend-url", config.BackendURL(), "Recommendation backend base URL")

	root.AddCommand(
		newInterviewCmd(),
		newRecommendCmd(opts),
		newQuestionsCmd(opts),
		newServeCmd(),
	)
	return root
}

func main() {
	config.LoadDotEnv()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
