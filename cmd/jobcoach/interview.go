package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jobcoach/internal/config"
	"github.com/teslashibe/go-jobcoach/internal/log"
	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
	"github.com/teslashibe/go-jobcoach/pkg/session"
)

type interviewOptions struct {
	endpoint string
	backend  string
	device   string
	producer string
	interval time.Duration
	duration time.Duration
	quality  int
	binary   bool
}

func newInterviewCmd() *cobra.Command {
	opts := &interviewOptions{}

	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Run a live interview confidence analysis session",
		Long: `Acquire the camera, stream a frame every interval to the analysis endpoint and
print each label as it arrives. Ctrl+C ends the session; the camera and the
channel are released on every exit path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInterview(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.endpoint, "endpoint", config.AnalysisURL(), "Analysis websocket endpoint")
	f.StringVar(&opts.backend, "backend", config.CaptureBackend(), "Capture backend: auto, webcam, webrtc, mock")
	f.StringVar(&opts.device, "device", config.CameraDevice(), "Camera index or path (webcam), signalling URL (webrtc)")
	f.StringVar(&opts.producer, "producer", capture.DefaultConfig().Producer, "WebRTC producer name")
	f.DurationVar(&opts.interval, "interval", config.SampleInterval(), "Frame sampling interval")
	f.DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	f.IntVar(&opts.quality, "quality", session.DefaultConfig().JPEGQuality, "JPEG quality 1-100")
	f.BoolVar(&opts.binary, "binary", false, "Send raw JPEG binary frames instead of base64 text")
	return cmd
}

func runInterview(cmd *cobra.Command, opts *interviewOptions) error {
	ctx := cmd.Context()
	logger := log.Component("interview")
	out := cmd.OutOrStdout()

	capCfg := capture.DefaultConfig()
	capCfg.Backend = capture.Backend(opts.backend)
	capCfg.Device = opts.device
	capCfg.Producer = opts.producer

	source, err := capture.NewSource(capCfg, logger)
	if err != nil {
		return err
	}

	payload := analysis.PayloadBase64
	if opts.binary {
		payload = analysis.PayloadBinary
	}
	dialer := analysis.NewDialer(analysis.WithPayload(payload), analysis.WithLogger(logger))

	stopped := make(chan struct{}, 1)
	s, err := session.New(source, dialer,
		session.WithEndpoint(opts.endpoint),
		session.WithInterval(opts.interval),
		session.WithJPEGQuality(opts.quality),
		session.WithLogger(logger),
		session.WithOnResult(func(r analysis.Result) {
			fmt.Fprintf(out, "%s  %s\n", r.ReceivedAt.Format("15:04:05.000"), r.Label)
		}),
		session.WithOnStateChange(func(from, to session.State) {
			if to == session.Stopped {
				select {
				case stopped <- struct{}{}:
				default:
				}
			}
		}),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "Starting session (%s camera -> %s)\n", source.Name(), opts.endpoint)
	if err := s.Start(ctx); err != nil {
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Fprintf(out, "Session %s active, press Ctrl+C to stop\n", s.ID())

	var timeout <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	case <-stopped:
		fmt.Fprintln(out, "Analysis channel closed")
	}

	s.Stop()

	st := s.Stats()
	fmt.Fprintf(out, "Stopped: %d ticks, %d frames sent, %d skipped, %d dropped, %d results\n",
		st.Ticks, st.Sent, st.Skipped, st.Dropped, st.Results)
	return nil
}
