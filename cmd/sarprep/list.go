package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/sarprep/internal/asf"
	"github.com/robert-malhotra/sarprep/internal/config"
	"github.com/robert-malhotra/sarprep/internal/location"
	"github.com/robert-malhotra/sarprep/internal/pipeline"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/runs"
	"github.com/robert-malhotra/sarprep/internal/stac"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
	"github.com/robert-malhotra/sarprep/pkg/server"
)

func newLocationsCommand() *cli.Command {
	return &cli.Command{
		Name:      "locations",
		Usage:     "List the registered terminal locations",
		ArgsUsage: "[NAME...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "geojson",
				Usage: "Print a GeoJSON FeatureCollection instead of a table",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := location.LoadRegistry(cfg.Paths.Resolve(cfg.Paths.LocationsDir))
			if err != nil {
				return err
			}

			selected := reg.All()
			if cmd.Args().Len() > 0 {
				selected = nil
				for _, name := range cmd.Args().Slice() {
					loc, err := reg.Lookup(name)
					if err != nil {
						return err
					}
					selected = append(selected, loc)
				}
			}

			if cmd.Bool("geojson") {
				fc := geojson.FeatureCollection{Type: "FeatureCollection"}
				for _, loc := range selected {
					f, err := loc.Feature()
					if err != nil {
						return err
					}
					fc.Features = append(fc.Features, f)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(fc)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "NAME\tCOUNTRY\tBBOX\tTITLE")
			for _, loc := range selected {
				bbox, err := loc.BBox()
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", loc.Name, loc.Country, formatBBox(bbox), loc.Title)
			}
			return nil
		},
	}
}

func formatBBox(bbox []float64) string {
	parts := make([]string, len(bbox))
	for i, v := range bbox {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return strings.Join(parts, ",")
}

func newScenesCommand() *cli.Command {
	return &cli.Command{
		Name:  "scenes",
		Usage: "Search ASF for GRD scenes covering a location",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "location",
				Aliases:  []string{"l"},
				Usage:    "Terminal location to search over",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "datetime",
				Usage: "Acquisition interval in RFC 3339, e.g. 2023-03-01T00:00:00Z/2023-03-31T23:59:59Z",
			},
			&cli.StringFlag{
				Name:  "direction",
				Usage: "Flight direction (ASCENDING or DESCENDING)",
			},
			&cli.IntFlag{
				Name:  "relative-orbit",
				Usage: "Relative orbit (path) number",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of scenes",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			query := asf.SceneQuery{
				BeamMode:        "IW",
				FlightDirection: strings.ToUpper(cmd.String("direction")),
				RelativeOrbit:   int(cmd.Int("relative-orbit")),
				MaxResults:      int(cmd.Int("limit")),
			}
			switch query.FlightDirection {
			case "", "ASCENDING", "DESCENDING":
			default:
				return fmt.Errorf("direction must be ASCENDING or DESCENDING, got %q", cmd.String("direction"))
			}
			if dt := cmd.String("datetime"); dt != "" {
				if query.Start, query.End, err = stac.ParseDatetimeInterval(dt); err != nil {
					return err
				}
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			loc, err := srv.Locations().Lookup(cmd.String("location"))
			if err != nil {
				return err
			}
			query.Area = loc.Geometry

			scenes, err := srv.Catalog().FindScenes(ctx, query)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "SCENE\tSTART\tDIRECTION\tPATH\tSIZE")
			for _, f := range scenes {
				p := f.Properties
				path := "-"
				if p.PathNumber != nil {
					path = fmt.Sprint(*p.PathNumber)
				}
				size := "-"
				if n := p.Size(); n > 0 {
					size = humanize.IBytes(uint64(n))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.SceneName, p.StartTime, p.FlightDirection, path, size)
			}
			return nil
		},
	}
}

func newRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded runs (requires SARPREP_RUNS_DB_PATH)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "location",
				Aliases: []string{"l"},
				Usage:   "Only list runs over this location",
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only list failed runs",
			},
			&cli.StringFlag{
				Name:  "datetime",
				Usage: "Only list runs started within an RFC 3339 interval, e.g. 2023-03-01T00:00:00Z/..",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Runs.DBPath == "" {
				return fmt.Errorf("no run ledger configured; set %sRUNS_DB_PATH", config.EnvPrefix)
			}
			filter := runs.Filter{Location: cmd.String("location")}
			if cmd.Bool("failed") {
				filter.State = pipeline.StateFailed
			}
			if dt := cmd.String("datetime"); dt != "" {
				if filter.Since, filter.Until, err = stac.ParseDatetimeInterval(dt); err != nil {
					return err
				}
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			reports, total, err := srv.Runner().Store().List(ctx, filter, int(cmd.Int("limit")), 0)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintf(tw, "RUN\tSTARTED\tLOCATION\tCHANNELS\tSTATE\tDURATION\n")
			for _, r := range reports {
				duration := "-"
				if !r.FinishedAt.IsZero() {
					duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					humanize.Time(r.StartedAt),
					r.Location,
					strings.Join(polarization.Strings(r.Channels), ","),
					r.State,
					duration,
				)
			}
			if total > len(reports) {
				fmt.Fprintf(tw, "(%d of %d runs shown)\n", len(reports), total)
			}
			return nil
		},
	}
}
