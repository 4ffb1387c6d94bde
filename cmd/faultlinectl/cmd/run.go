package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"faultline/internal/campaign"
	"faultline/pkg/faultline"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a glitching campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := faultline.CampaignRequest{}
		if runConfigPath != "" {
			var err error
			req, err = loadCampaignRequest(runConfigPath)
			if err != nil {
				return err
			}
		}

		client, err := faultline.New(faultline.Options{
			StoreKind: storeKind,
			DBPath:    dbPath,
			Columns:   columnsFromRequest(req),
		})
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := client.Init(ctx); err != nil {
			return err
		}

		summary, err := client.Run(ctx, req, campaign.NewCLIReporter(os.Stdout))
		if err != nil {
			return err
		}

		fmt.Printf("run %s finished: %d trials\n", summary.RunID, summary.Trials)
		fmt.Println("best performing bins:")
		for _, bin := range summary.BestBins {
			fmt.Printf("  bin %v: weight=%v visits=%d\n", bin.Coordinate, bin.Weight, bin.Visits)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "campaign config file (JSON)")
	rootCmd.AddCommand(runCmd)
}
