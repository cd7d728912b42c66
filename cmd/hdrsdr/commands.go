package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vearutop/hdrsdr"
	"github.com/vearutop/hdrsdr/channel"
	"github.com/vearutop/hdrsdr/internal/config"
	"github.com/vearutop/hdrsdr/internal/logging"
)

// app holds state shared by subcommands after configuration is resolved.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "hdrsdr",
		Short:         "Convert HDR and wide-gamut images to sRGB JPEG",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.IntP("quality", "q", hdrsdr.DefaultQuality, "JPEG quality (0-100), env "+config.EnvPrefix+"QUALITY")
	pf.Int("workers", 0, "concurrent conversions, env "+config.EnvPrefix+"WORKERS")
	pf.Uint("max-dimension", 0, "downscale so that no side exceeds this, 0 disables")
	pf.Bool("passthrough-srgb", false, "return sRGB JPEG input unchanged")
	pf.String("encoder", "", "force encoder: jpegli or std")
	pf.String("decoder", "", "force decoder: wide-gamut, color-managed or basic")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "log in JSON format")

	rootCmd.AddCommand(
		a.newConvertCmd(),
		a.newBatchCmd(),
		a.newProbeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads configuration and applies flags set on the command line.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("quality") {
		cfg.Quality, _ = f.GetInt("quality")
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("max-dimension") {
		cfg.MaxDimension, _ = f.GetUint("max-dimension")
	}
	if f.Changed("passthrough-srgb") {
		cfg.PassthroughSRGB, _ = f.GetBool("passthrough-srgb")
	}
	if f.Changed("encoder") {
		cfg.Encoder, _ = f.GetString("encoder")
	}
	if f.Changed("decoder") {
		cfg.Decoder, _ = f.GetString("decoder")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-json") {
		cfg.Log.JSON, _ = f.GetBool("log-json")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	l, err := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, l
	return nil
}

func (a *app) normalizer() (*hdrsdr.Normalizer, error) {
	opts := []func(o *hdrsdr.Options){
		hdrsdr.WithLogger(a.log),
		hdrsdr.WithMaxDimension(a.cfg.MaxDimension),
	}
	if a.cfg.PassthroughSRGB {
		opts = append(opts, hdrsdr.WithPassthroughSRGB())
	}
	if a.cfg.Decoder != "" {
		d, err := hdrsdr.DecoderByName(a.cfg.Decoder)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hdrsdr.WithDecoders(d))
	}
	if a.cfg.Encoder != "" {
		e, err := hdrsdr.EncoderByName(a.cfg.Encoder)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hdrsdr.WithEncoders(e))
	}
	return hdrsdr.New(opts...)
}

func (a *app) handler() (*channel.Handler, error) {
	n, err := a.normalizer()
	if err != nil {
		return nil, err
	}
	a.log.Debug("backend", "decoder", n.Decoder().Name(), "encoder", n.Encoder().Name())
	return channel.NewHandler(n, func(o *channel.HandlerOptions) {
		o.Workers = a.cfg.Workers
		o.DefaultQuality = a.cfg.Quality
		o.Logger = a.log
	}), nil
}

func convertCall(data []byte, quality int) channel.Call {
	return channel.Call{
		Method: channel.MethodConvert,
		Args:   map[string]any{channel.ArgImage: data, channel.ArgQuality: quality},
	}
}

func (a *app) convertFile(ctx context.Context, h *channel.Handler, inPath, outPath string) error {
	data, err := os.ReadFile(filepath.Clean(inPath))
	if err != nil {
		return err
	}
	res, err := h.Handle(ctx, convertCall(data, a.cfg.Quality))
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}
	out, ok := res.([]byte)
	if !ok {
		return fmt.Errorf("%s: unexpected result %T", inPath, res)
	}
	if err := os.WriteFile(filepath.Clean(outPath), out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	a.log.Info("converted", "in", inPath, "out", outPath, "in_bytes", len(data), "out_bytes", len(out))
	return nil
}

func (a *app) newConvertCmd() *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a single image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" || outPath == "" {
				return errors.New("missing required arguments: --in and --out")
			}
			h, err := a.handler()
			if err != nil {
				return err
			}
			return a.convertFile(cmd.Context(), h, inPath, outPath)
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input image")
	cmd.Flags().StringVar(&outPath, "out", "", "output JPEG")
	return cmd
}

func (a *app) newBatchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Convert many images into a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return errors.New("missing required argument: --out-dir")
			}
			outputs := make(map[string]string, len(args))
			for _, in := range args {
				out := filepath.Join(outDir, outputName(in))
				if prev, ok := outputs[out]; ok {
					return fmt.Errorf("%s and %s both write %s", prev, in, out)
				}
				outputs[out] = in
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			h, err := a.handler()
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(a.cfg.Workers)
			for out, in := range outputs {
				g.Go(func() error {
					return a.convertFile(ctx, h, in, out)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "output directory")
	return cmd
}

// outputName replaces the extension of p with .jpg.
func outputName(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".jpg"
}

func (a *app) newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [files...]",
		Short: "Print format, size, orientation and colour profile as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, p := range args {
				f, err := os.Open(filepath.Clean(p))
				if err != nil {
					return err
				}
				info, err := hdrsdr.ProbeReader(f)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				if err := enc.Encode(struct {
					Path string `json:"path"`
					*hdrsdr.Info
				}{Path: p, Info: info}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print platform version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := channel.NewHandler(nil)
			res, err := h.Handle(cmd.Context(), channel.Call{Method: channel.MethodGetPlatformVersion})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			return nil
		},
	}
}
