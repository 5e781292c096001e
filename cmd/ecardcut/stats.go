package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/spf13/cobra"
)

var statsJSON bool

// statsCmd prints the current contents of every storage directory
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage directory statistics",
	Args:  cobra.NoArgs,
	RunE:  statsHandler,
}

func statsHandler(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadValidConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	sweeper, err := newSweeper(cfg, store, logger.Nop(), nil)
	if err != nil {
		return err
	}

	stats := sweeper.Stats()
	out := cmd.OutOrStdout()

	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, constants.MsgStatsHeader)
	for _, dir := range sweeper.Dirs() {
		st := stats[dir.Name]
		if !st.Exists {
			fmt.Fprintf(tw, constants.MsgStatsMissingRow, dir.Name)
			continue
		}
		fmt.Fprintf(tw, constants.MsgStatsRow, dir.Name, st.FileCount, st.TotalSizeMB,
			st.OldestAgeMinutes, st.NewestAgeMinutes, st.EligibleCount)
	}
	return tw.Flush()
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print statistics as JSON")
}
