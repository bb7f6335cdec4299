package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/search"
	"github.com/wheelmate/wheelmate/internal/store"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// outputFormat returns the --output flag value, validated.
func outputFormat(cmd *cobra.Command) (string, error) {
	f, _ := cmd.Flags().GetString("output")
	f = strings.ToLower(strings.TrimSpace(f))
	switch f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON, formatYAML:
		return f, nil
	default:
		return "", eris.Errorf("unknown output format %q (valid: table, json, yaml)", f)
	}
}

// encode writes v as JSON or YAML.
func encode(out io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("cannot encode as %q", format)
	}
}

// searchOutput is the structured form of a search printed by --output.
type searchOutput struct {
	search.Result `yaml:",inline"`
	Summary       search.Summary `json:"summary" yaml:"summary"`
}

// formatSearchResult writes the places nearest first with a summary footer.
func formatSearchResult(out io.Writer, res *search.Result, summary search.Summary) {
	if res.Warning != "" {
		_, _ = fmt.Fprintf(out, "WARNING: %s\n\n", res.Warning)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tACCESSIBILITY\tDISTANCE\tDIR\tFEATURES\tADDRESS")
	_, _ = fmt.Fprintln(w, "----\t----\t-------------\t--------\t---\t--------\t-------")
	for _, p := range res.Places {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f km\t%s\t%s\t%s\n",
			truncate(p.Name, 40),
			p.Type,
			p.Rating.Label(),
			geo.Distance(res.Location, p.Location),
			geo.QuadrantOf(res.Location, p.Location),
			truncate(strings.Join(p.Features, ", "), 50),
			truncate(p.Address, 40),
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d places within %.1f km of %s (source: %s, %s)\n",
		len(res.Places), res.RadiusKM, describeLocation(res), res.Source, res.Elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "Fully: %d  Partially: %d  Not: %d  Unknown: %d  Accessible: %.0f%%\n",
		summary.ByRating[model.RatingFully.String()],
		summary.ByRating[model.RatingPartially.String()],
		summary.ByRating[model.RatingNot.String()],
		summary.ByRating[model.RatingUnknown.String()],
		summary.AccessibleShare*100,
	)
	if failed := res.Report.Failed(); len(failed) > 0 {
		_, _ = fmt.Fprintf(out, "Unavailable providers: %s\n", strings.Join(failed, ", "))
	}
}

func describeLocation(res *search.Result) string {
	if res.City != "" {
		return res.City
	}
	if res.Query != "" {
		return res.Query
	}
	return fmt.Sprintf("%.4f, %.4f", res.Location.Lat, res.Location.Lon)
}

// formatPlace writes one place and its verifications.
func formatPlace(out io.Writer, p *model.Place, vs []model.Verification) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", p.Name)
	_, _ = fmt.Fprintf(w, "Type:\t%s\n", p.Type)
	_, _ = fmt.Fprintf(w, "Accessibility:\t%s\n", p.Rating.Label())
	_, _ = fmt.Fprintf(w, "Location:\t%.6f, %.6f\n", p.Location.Lat, p.Location.Lon)
	_, _ = fmt.Fprintf(w, "Address:\t%s\n", p.Address)
	_, _ = fmt.Fprintf(w, "Features:\t%s\n", strings.Join(p.Features, ", "))
	if p.Physical.SlopeDeg != nil {
		_, _ = fmt.Fprintf(w, "Slope:\t%.1f°\n", *p.Physical.SlopeDeg)
	}
	if p.Physical.DoorWidthCM != nil {
		_, _ = fmt.Fprintf(w, "Door width:\t%.0f cm\n", *p.Physical.DoorWidthCM)
	}
	if p.Physical.Surface != nil {
		_, _ = fmt.Fprintf(w, "Surface:\t%s\n", *p.Physical.Surface)
	}
	if len(p.Photo) > 0 {
		_, _ = fmt.Fprintf(w, "Photo:\t%d bytes\n", len(p.Photo))
	}
	_, _ = fmt.Fprintf(w, "Last updated:\t%s\n", p.LastUpdated.Format("2006-01-02 15:04"))

	confirmed := 0
	for _, v := range vs {
		if v.Verified {
			confirmed++
		}
	}
	_, _ = fmt.Fprintf(w, "Verifications:\t%d (%d confirmed)\n", len(vs), confirmed)
	_ = w.Flush()
}

// formatStats writes cache statistics.
func formatStats(out io.Writer, s *store.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Places:\t%d\n", s.Places)
	for _, r := range model.Ratings {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", r.Label(), s.ByRating[r])
	}
	_, _ = fmt.Fprintf(w, "Fresh (< 7 days):\t%d\n", s.Fresh)
	_, _ = fmt.Fprintf(w, "With photo:\t%d\n", s.WithPhoto)
	_, _ = fmt.Fprintf(w, "Verifications:\t%d\n", s.Verifications)
	_, _ = fmt.Fprintf(w, "Schema version:\t%d\n", s.SchemaVersion)
	_ = w.Flush()
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
