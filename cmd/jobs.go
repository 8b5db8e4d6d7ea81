package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/jobs"
)

// -- jobs --

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List resumable local jobs and remote ledger jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv("jobs")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Manager.RegisterResumable(); err != nil {
			return err
		}

		views := env.Manager.ListAll(cmd.Context())
		if len(views) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}
		formatJobsList(os.Stdout, views)
		return nil
	},
}

// -- job <id> --

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show the full state of one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv("jobs")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Manager.RegisterResumable(); err != nil {
			return err
		}

		v, err := env.Manager.State(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

// -- regions --

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List named regions and searchable states",
	RunE: func(cmd *cobra.Command, _ []string) error {
		regions, err := grid.LoadTable(cfg.RegionsFile)
		if err != nil {
			return err
		}
		formatRegions(os.Stdout, regions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(regionsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, views []jobs.View) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNICHE\tREGION\tSTATUS\tSOURCE\tPLACES\tEMAILS\tRESUME")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t------\t------\t------\t------")

	for _, v := range views {
		resume := ""
		if v.CanResume {
			resume = v.ResumeStep
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			v.ID,
			truncate(v.Niche, 24),
			v.Region,
			v.Status,
			v.Source,
			v.Progress.PlacesScraped,
			v.Progress.PlacesFound,
			v.Progress.EmailsFound,
			resume,
		)
	}
	_ = w.Flush()
}

// formatRegions writes region keys with their display names, then the
// state names.
func formatRegions(out io.Writer, t *grid.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME")
	for _, key := range t.RegionKeys() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", key, t.DisplayName(key))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nStates: %s\n", strings.Join(t.StateNames(), ", "))
}

// printJob writes a short human summary of a job to stdout.
func printJob(v jobs.View) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	p := v.Progress
	_, _ = fmt.Fprintf(w, "Job:\t%s (%s, %s)\n", v.ID, v.Niche, v.Region)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", v.Status)
	_, _ = fmt.Fprintf(w, "Grid:\t%d/%d points\n", p.GridScanned, p.GridTotal)
	_, _ = fmt.Fprintf(w, "Places:\t%d scraped of %d (%d failed)\n", p.PlacesScraped, p.PlacesFound, p.PlacesFailed)
	_, _ = fmt.Fprintf(w, "Emails:\t%d found on %d sites\n", p.EmailsFound, p.EmailsScraped)
	if v.CSVPath != "" {
		_, _ = fmt.Fprintf(w, "Export:\t%s\n", v.CSVPath)
	}
	if v.CSVURL != "" {
		_, _ = fmt.Fprintf(w, "Uploaded:\t%s\n", v.CSVURL)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
