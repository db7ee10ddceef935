package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/handcap"
	"github.com/teranos/handcap/capture"
	"github.com/teranos/handcap/console"
	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/logging"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/synth"
	"github.com/teranos/handcap/upload"
)

type simulateOptions struct {
	cycles     int
	ui         bool
	shots      string
	declines   int
	clickDelay time.Duration
	speed      float64
	logFile    string
	echo       time.Duration
	template   string
	musicURL   string
}

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run capture cycles with synthetic hands and upload them",
		Long: `Simulate drives the capture flow with a synthetic headset: the right hand
reaches for the capture sphere, the recording is uploaded to collector.url.

With --ui the flow is shown in the terminal and waits for your clicks;
otherwise every prompt is clicked automatically.

With --echo the hands are recorded once more after the last cycle and
replayed straight away onto a pair of display dummies. --template also
writes the wrist-only gesture template captured over the same window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ui && opts.echo > 0 {
				return errors.New("--echo cannot be combined with --ui")
			}
			if opts.template != "" && opts.echo <= 0 {
				return errors.New("--template needs --echo")
			}
			return runSimulate(cmd, ctx, opts)
		},
	}

	cmd.Flags().IntVar(&opts.cycles, "cycles", 1, "Capture cycles to run (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.ui, "ui", false, "Show the capture surface in the terminal")
	cmd.Flags().StringVar(&opts.shots, "shots", "", "Write a PNG of the surface at every transition into this directory")
	cmd.Flags().IntVar(&opts.declines, "declines", 0, "Refuse the first n session requests")
	cmd.Flags().DurationVar(&opts.clickDelay, "click-delay", 200*time.Millisecond, "Delay of automatic clicks")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1.5, "Hand speed toward the sphere in m/s")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file (--ui discards logs otherwise)")
	cmd.Flags().DurationVar(&opts.echo, "echo", 0, "Record this long after the last cycle and replay it onto dummy hands")
	cmd.Flags().StringVar(&opts.template, "template", "", "Write the gesture template captured during --echo to this file")
	cmd.Flags().StringVar(&opts.musicURL, "music-url", "", "Backing track recorded in the gesture template")
	return cmd
}

func runSimulate(cmd *cobra.Command, ctx *commandContext, opts simulateOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	logOut := cmd.ErrOrStderr()
	if opts.logFile != "" {
		path, err := expandFlagPath(opts.logFile)
		if err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	} else if opts.ui {
		logOut = io.Discard
	}
	logger, err := ctx.logger(logOut)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logOut == io.Discard {
		logger = logging.NewNop()
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, stop := context.WithCancel(signalCtx)
	defer stop()

	dc := cfg.DirectorConfig()
	dc.Cycles = opts.cycles

	sched := frame.NewScheduler()
	clock := frame.SystemClock{}
	head := synth.NewHead()
	hands := synth.NewHands(clock)
	devices := synth.NewDevices()
	devices.Declines = opts.declines
	synth.Reach(sched, clock, hands.RightHand(), pose.Offset{Base: head, Delta: dc.TriggerOffset}, opts.speed)

	client := upload.NewClient(nil)
	client.BaseURL = cfg.Collector.URL

	surface := console.NewSurface()
	var clicks handcap.Clicks = surface
	if !opts.ui {
		clicks = synth.NewAutoClicker(opts.clickDelay)
	}

	app := &handcap.App{
		Scheduler: sched,
		Clock:     clock,
		Devices:   devices,
		Hands:     hands,
		Head:      head,
		Uploader:  client,
		Assets:    &synth.Preloader{},
		Display:   surface,
		Clicks:    clicks,
		Logger:    logger,
	}
	director := handcap.NewDirector(app, dc)

	var film *console.Film
	if opts.shots != "" {
		dir, err := expandFlagPath(opts.shots)
		if err != nil {
			return err
		}
		if film, err = console.NewFilm(dir, surface, console.DefaultCameraConfig()); err != nil {
			return err
		}
	}
	director.OnTransition(func(tr handcap.Transition) {
		surface.OnTransition(tr)
		if film != nil {
			film.OnTransition(tr)
		}
	})

	go func() {
		_ = frame.Loop(runCtx, sched, frame.Interval(cfg.Capture.FrameRate))
	}()

	logger.Info("simulation starting",
		"cycles", opts.cycles,
		"upload_url", dc.UploadURL,
		"duration", dc.Duration.String())

	var runErr error
	if opts.ui {
		runErr = runWithSurface(runCtx, stop, director, surface)
	} else {
		runErr = director.Run(runCtx)
	}

	if film != nil {
		if err := film.Err(); err != nil {
			logger.Warn("capturing shots failed", "error", err)
		}
	}
	if errors.Is(runErr, context.Canceled) && signalCtx.Err() != nil {
		return runErr
	}
	if err := printTransitions(cmd.OutOrStdout(), director.Transitions()); err != nil {
		return err
	}
	if runErr != nil {
		logSummary(logger, director)
		return runErr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Completed %d capture cycle(s)\n", completedCycles(director.Transitions()))

	if opts.echo > 0 {
		rig := echoRig{Scheduler: sched, Clock: clock, Hands: hands, Head: head, Logger: logger}
		return runEcho(runCtx, cmd.OutOrStdout(), rig, opts)
	}
	return nil
}

type echoRig struct {
	Scheduler *frame.Scheduler
	Clock     frame.Clock
	Hands     pose.Hands
	Head      pose.Transform
	Logger    *slog.Logger
}

// runEcho records opts.echo of hand motion, replays it onto two dummies and
// optionally saves the wrist template captured alongside.
func runEcho(ctx context.Context, out io.Writer, rig echoRig, opts simulateOptions) error {
	recorder := &capture.Recorder{
		Scheduler: rig.Scheduler,
		Clock:     rig.Clock,
		Hands:     rig.Hands,
		Head:      rig.Head,
		Logger:    rig.Logger,
	}
	player := &capture.Player{Scheduler: rig.Scheduler, Clock: rig.Clock, Logger: rig.Logger}
	left, right := synth.NewDummy(), synth.NewDummy()

	var take *capture.TemplateTake
	if opts.template != "" {
		tr := &capture.TemplateRecorder{Scheduler: rig.Scheduler, Clock: rig.Clock, Hands: rig.Hands, Head: rig.Head}
		take = tr.Begin(opts.musicURL)
	}

	if err := capture.Echo(ctx, recorder, player, opts.echo, left, right); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	fmt.Fprintf(out, "Echo replayed %d left and %d right poses over %s\n", left.Poses(), right.Poses(), opts.echo)

	if take == nil {
		return nil
	}
	take.Stop()
	tpl, err := take.Wait(ctx)
	if err != nil {
		return fmt.Errorf("gesture template: %w", err)
	}
	w, closeOut, err := openOutput(opts.template, out)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tpl); err != nil {
		_ = closeOut()
		return fmt.Errorf("write gesture template: %w", err)
	}
	if err := closeOut(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote gesture template with %d frames to %s\n", len(tpl.Data), opts.template)
	return nil
}

// runWithSurface shows the console until the user quits. The last screen
// stays up after the flow ends.
func runWithSurface(ctx context.Context, stop context.CancelFunc, director *handcap.Director, surface *console.Surface) error {
	flowErr := make(chan error, 1)
	go func() {
		flowErr <- director.Run(ctx)
	}()

	uiErr := console.Run(ctx, surface)
	stop()
	err := <-flowErr
	if errors.Is(uiErr, context.Canceled) && errors.Is(err, context.Canceled) {
		return nil
	}
	if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
		return uiErr
	}
	return err
}

func printTransitions(w io.Writer, transitions []handcap.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	start := transitions[0].Timestamp
	rows := make([][]string, 0, len(transitions))
	for i, tr := range transitions {
		rows = append(rows, []string{
			itoa(i + 1),
			tr.From.String(),
			tr.To.String(),
			valueOrDash(tr.Reason),
			"+" + tr.Timestamp.Sub(start).Round(time.Millisecond).String(),
		})
	}
	return writeRows(w,
		[]string{"#", "From", "To", "Reason", "At"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight})
}

func completedCycles(transitions []handcap.Transition) int {
	n := 0
	for _, tr := range transitions {
		if tr.To == handcap.Done {
			n++
		}
	}
	return n
}

func logSummary(logger *slog.Logger, director *handcap.Director) {
	trips := director.Trips()
	logger.Error("simulation stopped",
		"state", director.State().String(),
		"summary", trips.Summary())
}
