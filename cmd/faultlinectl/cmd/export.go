package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"faultline/pkg/faultline"
)

var exportOutPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the experiment log as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := faultline.New(faultline.Options{
			StoreKind: storeKind,
			DBPath:    dbPath,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		ctx := context.Background()
		if err := client.Init(ctx); err != nil {
			return err
		}
		recs, err := client.Experiments(ctx)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutPath != "" {
			f, err := os.Create(exportOutPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		w := csv.NewWriter(out)
		header := []string{"id", "params", "category", "weight", "seeded", "response", "created_at"}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, rec := range recs {
			params := make([]byte, 0, 16*len(rec.Params))
			for i, p := range rec.Params {
				if i > 0 {
					params = append(params, ';')
				}
				params = strconv.AppendFloat(params, p, 'g', -1, 64)
			}
			row := []string{
				strconv.FormatInt(rec.ID, 10),
				string(params),
				string(rec.Category),
				strconv.FormatFloat(rec.Weight, 'g', -1, 64),
				strconv.FormatBool(rec.Seeded),
				fmt.Sprintf("%q", rec.Response),
				rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutPath, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
