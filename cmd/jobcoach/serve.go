package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jobcoach/internal/config"
	"github.com/teslashibe/go-jobcoach/internal/log"
	"github.com/teslashibe/go-jobcoach/pkg/analysisd"
	"github.com/teslashibe/go-jobcoach/pkg/classify"
)

type serveOptions struct {
	addr        string
	classifier  string
	model       string
	visionKey   string
	visionURL   string
	visionModel string
	origins     string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the frame analysis endpoint",
		Long:  "Serve /ws/analyze: every JPEG frame received is classified and answered with {\"label\": ...}.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", config.AnalysisAddr(), "Listen address")
	f.StringVar(&opts.classifier, "classifier", string(classify.KindMock), "Classifier: mock, vision, gemini, dnn, none")
	f.StringVar(&opts.model, "model", classify.DefaultConfig().ModelPath, "Model file for the dnn classifier")
	f.StringVar(&opts.visionKey, "vision-api-key", config.String(config.EnvVisionAPIKey, ""), "API key for the vision or gemini classifier")
	f.StringVar(&opts.visionURL, "vision-base-url", config.String(config.EnvVisionBaseURL, ""), "Vision API base URL (default per classifier)")
	f.StringVar(&opts.visionModel, "vision-model", config.String(config.EnvVisionModel, ""), "Vision model (default per classifier)")
	f.StringVar(&opts.origins, "cors-origins", "", "Allowed CORS origins (default all)")
	return cmd
}

func newClassifier(opts *serveOptions) (classify.Classifier, error) {
	if opts.classifier == "none" {
		return nil, nil
	}

	copts := []classify.Option{
		classify.WithAPIKey(opts.visionKey),
		classify.WithModelPath(opts.model),
		classify.WithLogger(log.Component("classify")),
	}
	if opts.visionURL != "" {
		copts = append(copts, classify.WithBaseURL(opts.visionURL))
	}
	if opts.visionModel != "" {
		copts = append(copts, classify.WithModel(opts.visionModel))
	}
	return classify.New(classify.Kind(opts.classifier), copts...)
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	c, err := newClassifier(opts)
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	if c != nil {
		defer c.Close()
	} else {
		log.L().Warn("serving without a classifier, analysis connections will be closed")
	}

	srv, err := analysisd.New(c,
		analysisd.WithAddr(opts.addr),
		analysisd.WithCORSOrigins(opts.origins),
		analysisd.WithLogger(log.L()),
	)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(cmd.Context())
}
