package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <place or lat,lon>",
	Short: "Find wheelchair-accessible places near a location",
	Long: "Resolves the query to a location and lists nearby places with their accessibility rating. " +
		"Live provider data is preferred; a fresh local cache and then generated demo data are used when providers are unavailable.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		if offline, _ := cmd.Flags().GetBool("offline"); offline {
			cfg.Search.OfflineMode = true
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		radius, _ := cmd.Flags().GetFloat64("radius")
		res, err := env.Engine.Search(ctx, strings.Join(args, " "), radius)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		res.Places = filter.Apply(res.Places)
		geo.SortByDistance(res.Location, res.Places)
		summary := search.Summarize(res.Location, res.Places)

		if format != formatTable {
			return encode(cmd.OutOrStdout(), format, searchOutput{Result: *res, Summary: summary})
		}
		formatSearchResult(cmd.OutOrStdout(), res, summary)
		return nil
	},
}

// filterFromFlags builds a result filter from the search flags.
func filterFromFlags(cmd *cobra.Command) (search.Filter, error) {
	var f search.Filter
	flags := cmd.Flags()

	if raw, _ := flags.GetString("features"); raw != "" {
		features, unknown := search.ParseFeatures(raw)
		if len(unknown) > 0 {
			return f, eris.Errorf("unknown features %s (valid: ramp, restroom, elevator, wide_door)", strings.Join(unknown, ", "))
		}
		f.Features = features
	}
	f.SmoothSurface, _ = flags.GetBool("smooth-surface")
	f.RequireLowSlope, _ = flags.GetBool("require-slope")
	if flags.Changed("max-slope") || f.RequireLowSlope {
		v, _ := flags.GetFloat64("max-slope")
		f.MaxSlopeDeg = &v
	}
	if flags.Changed("min-door-width") {
		v, _ := flags.GetFloat64("min-door-width")
		f.MinDoorWidthCM = &v
	}
	if raw, _ := flags.GetString("min-rating"); raw != "" {
		r, err := model.ParseRating(raw)
		if err != nil {
			return f, err
		}
		f.MinRating = r
	}
	f.Types, _ = flags.GetStringSlice("type")
	return f, nil
}

func init() {
	f := searchCmd.Flags()
	f.Float64P("radius", "r", 0, "search radius in km (default from search.radius_km)")
	f.Bool("offline", false, "skip live providers and use the cache or demo data")
	f.String("features", "", "required features, comma separated (ramp, restroom, elevator, wide_door)")
	f.Bool("smooth-surface", false, "only places with a smooth or paved surface")
	f.Float64("max-slope", 8, "maximum slope in degrees; places with unknown slope are kept")
	f.Bool("require-slope", false, "also drop places whose slope is unknown")
	f.Float64("min-door-width", 80, "minimum door width in cm; places with unknown width are kept")
	f.String("min-rating", "", "minimum accessibility (fully, partially, not)")
	f.StringSlice("type", nil, "place types to keep, e.g. cafe,museum")

	rootCmd.AddCommand(searchCmd)
}
