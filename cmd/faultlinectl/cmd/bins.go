package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"faultline/pkg/faultline"
)

var (
	binsConfigPath string
	binsTop        int
)

var binsCmd = &cobra.Command{
	Use:   "bins",
	Short: "Show best performing parameter bins of the stored log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if binsConfigPath == "" {
			return fmt.Errorf("a config file with the campaign dimensions is required")
		}
		req, err := loadCampaignRequest(binsConfigPath)
		if err != nil {
			return err
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

		ctx := context.Background()
		if err := client.Init(ctx); err != nil {
			return err
		}

		bins, err := client.Bins(ctx, faultline.BinsRequest{
			Dimensions:  req.Dimensions,
			MalusFactor: req.MalusFactor,
			Top:         binsTop,
		})
		if err != nil {
			return err
		}
		for _, bin := range bins {
			fmt.Printf("bin %v: weight=%v visits=%d\n", bin.Coordinate, bin.Weight, bin.Visits)
		}
		return nil
	},
}

func init() {
	binsCmd.Flags().StringVarP(&binsConfigPath, "config", "c", "", "campaign config file (JSON)")
	binsCmd.Flags().IntVarP(&binsTop, "top", "n", 10, "number of bins to show")
	rootCmd.AddCommand(binsCmd)
}
