package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/sarprep/internal/archive"
	"github.com/robert-malhotra/sarprep/internal/pipeline"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/pkg/server"
)

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Geocode one or more GRD archives over a location",
		ArgsUsage: "ARCHIVE|DIR|URL|s3://URI|SCENE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "location",
				Aliases:  []string{"l"},
				Usage:    "Terminal name from the location registry",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "polarization",
				Aliases: []string{"p"},
				Usage:   "Channel to geocode (repeatable)",
				Value:   []string{string(pipeline.DefaultPolarization)},
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory for geocoded rasters (emptied each run)",
			},
			&cli.StringFlag{
				Name:  "shapefile-dir",
				Usage: "Directory for the subset shapefile (emptied each run)",
			},
			&cli.StringFlag{
				Name:  "orbit-cache-dir",
				Usage: "SNAP auxdata orbit directory, where gpt looks for orbit files",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Report format (text or json)",
				Value: "text",
			},
		},
		Action: executeRun,
	}
}

func executeRun(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("at least one archive is required")
	}
	channels, err := polarization.ParseChannels(cmd.StringSlice("polarization"))
	if err != nil {
		return err
	}
	format := strings.ToLower(strings.TrimSpace(cmd.String("output")))
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported output format %q", format)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("output-dir"); v != "" {
		cfg.Paths.OutputDir = v
	}
	if v := cmd.String("shapefile-dir"); v != "" {
		cfg.Paths.ShapefileDir = v
	}
	if v := cmd.String("orbit-cache-dir"); v != "" {
		cfg.Paths.OrbitCacheDir = v
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	inputs, err := archive.Expand(cmd.Args().Slice())
	if err != nil {
		return err
	}

	reports, failed, err := runBatch(ctx, inputs, func(ctx context.Context, input string, keepOutput bool) (*pipeline.Report, error) {
		return runOne(ctx, srv, input, cmd.String("location"), channels, keepOutput)
	}, logger)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printReports(os.Stdout, reports)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(inputs))
	}
	return nil
}

// runFunc processes one input of a batch.
type runFunc func(ctx context.Context, input string, keepOutput bool) (*pipeline.Report, error)

// runBatch runs inputs in order and counts the failures. The location output
// folder is reset by the first run that gets that far; later runs keep its
// contents.
func runBatch(ctx context.Context, inputs []string, run runFunc, logger *slog.Logger) ([]*pipeline.Report, int, error) {
	reports := make([]*pipeline.Report, 0, len(inputs))
	var failed int
	var outputReset bool
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return reports, failed, err
		}
		report, err := run(ctx, input, outputReset)
		if err != nil {
			failed++
			logger.Error("run failed",
				slog.String("input", input),
				slog.String("error", err.Error()),
			)
		}
		if report == nil {
			continue
		}
		reports = append(reports, report)
		if report.OutputDir != "" {
			outputReset = true
		}
	}
	return reports, failed, nil
}

// runOne stages a single input and runs it through the shared runner.
func runOne(ctx context.Context, srv *server.Server, input, loc string, channels []polarization.Channel, keepOutput bool) (*pipeline.Report, error) {
	path, err := srv.Stager().Stage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", input, err)
	}
	req := srv.Request(path, loc, channels)
	req.KeepOutput = keepOutput
	return srv.Runner().Run(ctx, req)
}

func printReports(w io.Writer, reports []*pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tARCHIVE\tLOCATION\tSTATE\tOUTPUTS")
	for _, r := range reports {
		var outputs []string
		for _, res := range r.Geocoded() {
			outputs = append(outputs, res.RasterPath)
		}
		state := string(r.State)
		if r.ErrorKind != "" {
			state += " (" + string(r.ErrorKind) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, polarization.BaseName(r.Archive), r.Location, state, strings.Join(outputs, ","))
	}
	tw.Flush()
}

func newClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Print the polarization channels encoded in archive names",
		ArgsUsage: "ARCHIVE...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return errors.New("at least one archive is required")
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer tw.Flush()

			var bad int
			for _, p := range cmd.Args().Slice() {
				channels, err := polarization.ClassifyPath(p)
				if err != nil {
					bad++
					fmt.Fprintf(tw, "%s\t%v\n", polarization.BaseName(p), err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\n", polarization.BaseName(p), strings.Join(polarization.Strings(channels), ","))
			}
			if bad > 0 {
				return fmt.Errorf("%d archive(s) could not be classified", bad)
			}
			return nil
		},
	}
}

func newIdentifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "identify",
		Usage:     "Print the product descriptor of local archives as JSON",
		ArgsUsage: "ARCHIVE...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return errors.New("at least one archive is required")
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, p := range cmd.Args().Slice() {
				d, err := srv.Identifier().Identify(ctx, p)
				if err != nil {
					return err
				}
				if err := enc.Encode(d); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
