package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/queue-sentinel/internal/config"
	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
)

func newCapturer(ctx context.Context, cfg *config.Config) (*screen.Capturer, context.Context, context.CancelFunc, error) {
	src, err := screen.NewSource()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.StepTimeout*4)
	return screen.NewCapturer(src), ctx, cancel, nil
}

func runWindows(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	closeLog := setupLogging(cfg)
	defer func() { _ = closeLog() }()

	capturer, ctx, cancel, err := newCapturer(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = capturer.Close() }()

	wins, err := capturer.Windows(ctx)
	if err != nil {
		return err
	}

	target := color.New(color.FgGreen, color.Bold).SprintFunc()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPID\tAPP\tSIZE\tTITLE")
	for _, w := range wins {
		title := w.DisplayTitle()
		if w.HasTitle(cfg.WindowTitle) {
			title = target(title)
		}
		fmt.Fprintf(tw, "0x%x\t%d\t%s\t%dx%d\t%s\n", w.ID, w.PID, w.AppName, w.Width, w.Height, title)
	}
	return tw.Flush()
}

func runRegions(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	closeLog := setupLogging(cfg)
	defer func() { _ = closeLog() }()

	capturer, ctx, cancel, err := newCapturer(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = capturer.Close() }()

	caps, err := capturer.TakeAll(ctx)
	if err != nil {
		return err
	}
	c, ok := screen.FindByTitle(caps, cfg.WindowTitle)
	if !ok {
		return apperrors.Newf(apperrors.NotFound, "no window titled %q", cfg.WindowTitle)
	}

	d := orchestrator.DetectRegions(ctx, c.Image, uint8(cfg.BinarizeThreshold))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := writePNG(filepath.Join(outDir, "overlay.png"), d.Overlay); err != nil {
		return err
	}

	fmt.Printf("%d region(s) in %s\n", len(d.Regions), c.Window.DisplayTitle())
	for _, r := range d.Regions {
		name := filepath.Join(outDir, fmt.Sprintf("region-%d.png", r.Index))
		if err := writePNG(name, r.Preview); err != nil {
			return err
		}
		fmt.Printf("  [%d] %v match floor %d -> %s\n", r.Index, r.Bounds, r.MatchFloor(), name)
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
