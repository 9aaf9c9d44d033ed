package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datanovaai/marketplace-backend/blobstore"
	"github.com/datanovaai/marketplace-backend/consumer"
	"github.com/datanovaai/marketplace-backend/internal/cli/config"
	"github.com/datanovaai/marketplace-backend/store"
)

var (
	storeTitle       string
	storeDescription string
	storeDataType    string
	storeLicense     string
	storePrice       float64
	storeKeywords    []string
	storeAuthors     []string

	listDataType string
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage stored datasets",
}

var datasetsStoreCmd = &cobra.Command{
	Use:   "store <file>",
	Short: "Store a dataset file with its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, closers, err := buildDataStore()
		if err != nil {
			return err
		}
		defer closeAll(closers)

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		meta := store.Metadata{
			Title:        storeTitle,
			Description:  storeDescription,
			DataType:     store.DataType(storeDataType),
			Keywords:     storeKeywords,
			Authors:      storeAuthors,
			CreationDate: time.Now().UTC(),
			License:      storeLicense,
			PriceTokens:  storePrice,
		}

		datasetID, err := ds.Store(cmd.Context(), f, meta)
		if err != nil {
			return err
		}

		color.Green("Stored dataset %s", datasetID)
		return nil
	},
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, closers, err := buildDataStore()
		if err != nil {
			return err
		}
		defer closeAll(closers)

		filters := map[string]interface{}{}
		if listDataType != "" {
			filters["data_type"] = listDataType
		}

		datasets, err := ds.List(filters)
		if err != nil {
			return err
		}

		for _, meta := range datasets {
			fmt.Printf("%-40s %-14s %10d bytes  %8.2f tokens  %s\n",
				meta.Title, meta.DataType, meta.SizeBytes, meta.PriceTokens, shortHash(meta.FileHash))
		}
		fmt.Printf("%d dataset(s)\n", len(datasets))
		return nil
	},
}

var datasetsVerifyCmd = &cobra.Command{
	Use:   "verify <dataset-id>",
	Short: "Verify a dataset's content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, closers, err := buildDataStore()
		if err != nil {
			return err
		}
		defer closeAll(closers)

		if ds.VerifyIntegrity(cmd.Context(), args[0]) {
			color.Green("OK: %s content hash verified", args[0])
			return nil
		}
		color.Red("FAILED: %s is missing or corrupted", args[0])
		os.Exit(1)
		return nil
	},
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List recorded marketplace transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, closers, err := buildDataStore()
		if err != nil {
			return err
		}
		defer closeAll(closers)

		txs, err := ds.Transactions()
		if err != nil {
			return err
		}

		for _, tx := range txs {
			fmt.Printf("%s  %s -> %s  %s  %.4f  %s\n",
				tx.Timestamp.Format(time.RFC3339), tx.BuyerAddress, tx.SellerAddress,
				tx.DatasetID, tx.Amount, tx.Status)
		}
		fmt.Printf("%d transaction(s)\n", len(txs))
		return nil
	},
}

// buildDataStore wires a DataStore from the config file, attaching the
// blobstore and configured consumers.
func buildDataStore() (*store.DataStore, []consumer.Consumer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	ds, err := store.NewDataStore(cfg.StoreConfig())
	if err != nil {
		return nil, nil, err
	}

	if cfg.Marketplace.Blobstore.Enabled {
		bs, err := blobstore.NewFSBlobstore(map[string]interface{}{
			"base_path": cfg.Marketplace.Blobstore.BasePath,
		})
		if err != nil {
			return nil, nil, err
		}
		ds.AttachBlobstore(bs)
	}

	var closers []consumer.Consumer
	for _, consumerConfig := range cfg.Marketplace.Consumers {
		c, err := consumer.NewConsumer(consumerConfig)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		ds.Subscribe(c)
		closers = append(closers, c)
	}

	return ds, closers, nil
}

// shortHash abbreviates a content hash for display. Hand-edited or legacy
// metadata records may carry a short or empty hash.
func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func closeAll(closers []consumer.Consumer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("Error closing consumer: %v", err)
		}
	}
}

func init() {
	datasetsStoreCmd.Flags().StringVar(&storeTitle, "title", "", "dataset title")
	datasetsStoreCmd.Flags().StringVar(&storeDescription, "description", "", "dataset description")
	datasetsStoreCmd.Flags().StringVar(&storeDataType, "data-type", "experimental", "experimental|observational|computational|survey")
	datasetsStoreCmd.Flags().StringVar(&storeLicense, "license", "CC-BY-4.0", "license identifier")
	datasetsStoreCmd.Flags().Float64Var(&storePrice, "price", 0, "price in tokens")
	datasetsStoreCmd.Flags().StringSliceVar(&storeKeywords, "keyword", nil, "keyword (repeatable)")
	datasetsStoreCmd.Flags().StringSliceVar(&storeAuthors, "author", nil, "author (repeatable)")
	datasetsStoreCmd.MarkFlagRequired("title")

	datasetsListCmd.Flags().StringVar(&listDataType, "data-type", "", "filter by data type")

	datasetsCmd.AddCommand(datasetsStoreCmd, datasetsListCmd, datasetsVerifyCmd)
	rootCmd.AddCommand(datasetsCmd, transactionsCmd)
}
