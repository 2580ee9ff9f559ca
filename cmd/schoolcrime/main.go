package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cps-schoolcrime/internal/closures"
	"github.com/cps-schoolcrime/internal/config"
	"github.com/cps-schoolcrime/internal/db"
	"github.com/cps-schoolcrime/internal/etl"
	"github.com/cps-schoolcrime/internal/export"
	"github.com/cps-schoolcrime/internal/ingest"
	"github.com/cps-schoolcrime/internal/maps"
	"github.com/cps-schoolcrime/internal/review"
	"github.com/cps-schoolcrime/internal/socrata"
	"github.com/cps-schoolcrime/internal/spatial"
	"github.com/cps-schoolcrime/internal/transfers"
)

var (
	cfg    *config.Config
	dbConn *db.Connection

	configPath string
)

func main() {
	config.LoadEnv()

	rootCmd := &cobra.Command{
		Use:   "schoolcrime",
		Short: "Chicago school crime and closure pipeline",
		Long:  `Batch pipeline reconciling Chicago crime data with CPS school boundaries and closures`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}
			dbConn, err = db.NewConnection(cfg.DBPath)
			if err != nil {
				log.Fatalf("Failed to open working store: %v", err)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if dbConn != nil {
				dbConn.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to schoolcrime.yaml")

	rootCmd.AddCommand(createIngestCmd())
	rootCmd.AddCommand(createFilterSchoolsCmd())
	rootCmd.AddCommand(createBoundariesCmd())
	rootCmd.AddCommand(createClosuresCmd())
	rootCmd.AddCommand(createSpatialCmd())
	rootCmd.AddCommand(createTransfersCmd())
	rootCmd.AddCommand(createMapsCmd())
	rootCmd.AddCommand(createExportCmd())
	rootCmd.AddCommand(createReviewCmd())
	rootCmd.AddCommand(createStatsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// createIngestCmd pulls the crime dataset from the open-data portal.
func createIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the Chicago crime dataset",
		Run: func(cmd *cobra.Command, args []string) {
			creds := config.LoadCredentials()
			client := socrata.NewClient(cfg.Socrata.Host, creds.AppToken,
				creds.Username, creds.Password,
				time.Duration(cfg.Socrata.TimeoutSec)*time.Second)

			ing := ingest.NewIngester(dbConn.DB, client)
			if _, err := ing.IngestCrimes(cfg.Socrata.Resource, cfg.Socrata.BatchSize); err != nil {
				log.Fatalf("Crime ingestion failed: %v", err)
			}
		},
	}
}

func createFilterSchoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter-schools",
		Short: "Flag crimes at school locations",
		Run: func(cmd *cobra.Command, args []string) {
			ing := ingest.NewIngester(dbConn.DB, nil)
			if _, err := ing.FlagSchoolCrimes(); err != nil {
				log.Fatalf("School filter failed: %v", err)
			}
		},
	}
}

func createBoundariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boundaries [dir]",
		Short: "Load CPS boundary CSVs",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := cfg.DataDir
			if len(args) == 1 {
				dir = args[0]
			}
			loader := etl.NewLoader(dbConn.DB)
			if _, _, err := loader.LoadBoundaries(dir); err != nil {
				log.Fatalf("Boundary load failed: %v", err)
			}
		},
	}
}

func newClosureEngine() *closures.Engine {
	queue := review.NewQueue(dbConn.DB)
	return closures.NewEngine(dbConn.DB, queue,
		cfg.NameThreshold, cfg.AddressThreshold, cfg.FinalYear)
}

func createClosuresCmd() *cobra.Command {
	closuresCmd := &cobra.Command{
		Use:   "closures",
		Short: "Reconcile school closures",
	}

	closuresCmd.AddCommand(&cobra.Command{
		Use:   "compute",
		Short: "Derive closures from the boundary series",
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := newClosureEngine().ComputeFromBoundaries(); err != nil {
				log.Fatalf("Closure computation failed: %v", err)
			}
		},
	})

	closuresCmd.AddCommand(&cobra.Command{
		Use:   "open-years [output.csv]",
		Short: "Write the wide open-years table",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := filepath.Join(cfg.DataDir, "school_open_years.csv")
			if len(args) == 1 {
				path = args[0]
			}
			if err := newClosureEngine().WriteOpenYears(path, 2008, 2018); err != nil {
				log.Fatalf("Open-years export failed: %v", err)
			}
		},
	})

	closuresCmd.AddCommand(&cobra.Command{
		Use:   "wave2013 [list.csv]",
		Short: "Reconcile the announced 2013 closure list",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reviewPath := filepath.Join(cfg.DataDir, "wave2013_name_review.csv")
			if _, err := newClosureEngine().MatchWave2013(args[0], reviewPath); err != nil {
				log.Fatalf("2013 wave reconciliation failed: %v", err)
			}
		},
	})

	closuresCmd.AddCommand(&cobra.Command{
		Use:   "reference [list.csv]",
		Short: "Reconcile the external reference closure list",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			matchedPath := filepath.Join(cfg.DataDir, "reference_matched.csv")
			engine := newClosureEngine()
			if _, err := engine.MatchReference(args[0], matchedPath); err != nil {
				log.Fatalf("Reference reconciliation failed: %v", err)
			}
			discrepancyPath := filepath.Join(cfg.DataDir, "closure_discrepancies.csv")
			if _, err := engine.WriteDiscrepancies(discrepancyPath); err != nil {
				log.Fatalf("Discrepancy export failed: %v", err)
			}
		},
	})

	closuresCmd.AddCommand(&cobra.Command{
		Use:   "corrections [reviewed.csv]",
		Short: "Merge reviewed closure-year corrections",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := newClosureEngine().ApplyCorrections(args[0]); err != nil {
				log.Fatalf("Correction merge failed: %v", err)
			}
		},
	})

	closuresCmd.AddCommand(&cobra.Command{
		Use:   "finalize",
		Short: "Deduplicate to one closure per school",
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := newClosureEngine().Finalize(); err != nil {
				log.Fatalf("Closure finalization failed: %v", err)
			}
		},
	})

	return closuresCmd
}

func createSpatialCmd() *cobra.Command {
	spatialCmd := &cobra.Command{
		Use:   "spatial",
		Short: "Join crimes to school boundaries",
	}

	spatialCmd.AddCommand(&cobra.Command{
		Use:   "contain",
		Short: "Containment join of crimes against boundaries",
		Run: func(cmd *cobra.Command, args []string) {
			joiner, err := spatial.NewJoiner(dbConn.DB)
			if err != nil {
				log.Fatalf("Failed to index boundaries: %v", err)
			}
			if _, err := joiner.ContainmentJoin(); err != nil {
				log.Fatalf("Containment join failed: %v", err)
			}
		},
	})

	spatialCmd.AddCommand(&cobra.Command{
		Use:   "nearest",
		Short: "Assign each crime to its nearest school",
		Run: func(cmd *cobra.Command, args []string) {
			joiner, err := spatial.NewJoiner(dbConn.DB)
			if err != nil {
				log.Fatalf("Failed to index boundaries: %v", err)
			}
			if _, err := joiner.NearestAssign(); err != nil {
				log.Fatalf("Nearest assignment failed: %v", err)
			}
		},
	})

	spatialCmd.AddCommand(&cobra.Command{
		Use:   "filter",
		Short: "Apply the temporal consistency filter",
		Run: func(cmd *cobra.Command, args []string) {
			joiner, err := spatial.NewJoiner(dbConn.DB)
			if err != nil {
				log.Fatalf("Failed to index boundaries: %v", err)
			}
			if _, err := joiner.TemporalFilter(); err != nil {
				log.Fatalf("Temporal filter failed: %v", err)
			}
		},
	})

	return spatialCmd
}

func createTransfersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfers",
		Short: "Compute boundary area transfers after closures",
		Run: func(cmd *cobra.Command, args []string) {
			computer := transfers.NewComputer(dbConn.DB)
			if _, err := computer.Compute(2008, cfg.FinalYear-1); err != nil {
				log.Fatalf("Transfer computation failed: %v", err)
			}
		},
	}
}

func createMapsCmd() *cobra.Command {
	mapsCmd := &cobra.Command{
		Use:   "maps",
		Short: "Render HTML map artifacts",
	}

	outDir := func(args []string) string {
		if len(args) == 1 {
			return args[0]
		}
		return filepath.Join(cfg.DataDir, "maps")
	}

	mapsCmd.AddCommand(&cobra.Command{
		Use:   "yearly [dir]",
		Short: "One map per school year",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			renderer := maps.NewRenderer(dbConn.DB)
			if _, err := renderer.YearlyMaps(outDir(args)); err != nil {
				log.Fatalf("Yearly map rendering failed: %v", err)
			}
		},
	})

	mapsCmd.AddCommand(&cobra.Command{
		Use:   "slider [dir]",
		Short: "Time-slider map across years",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			renderer := maps.NewRenderer(dbConn.DB)
			if _, err := renderer.SliderMap(outDir(args)); err != nil {
				log.Fatalf("Slider map rendering failed: %v", err)
			}
		},
	})

	mapsCmd.AddCommand(&cobra.Command{
		Use:   "transfers [dir]",
		Short: "Area-transfer overlay maps",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			renderer := maps.NewRenderer(dbConn.DB)
			if _, err := renderer.TransferMaps(outDir(args)); err != nil {
				log.Fatalf("Transfer map rendering failed: %v", err)
			}
		},
	})

	return mapsCmd
}

func createExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export final artifacts",
	}

	exportCmd.AddCommand(&cobra.Command{
		Use:   "csv [dir]",
		Short: "Write enhanced CSV artifacts",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := filepath.Join(cfg.DataDir, "export")
			if len(args) == 1 {
				dir = args[0]
			}
			exporter := export.NewExporter(dbConn.DB)
			if err := exporter.ExportCSVs(dir); err != nil {
				log.Fatalf("CSV export failed: %v", err)
			}
		},
	})

	exportCmd.AddCommand(&cobra.Command{
		Use:   "postgres [connection-string]",
		Short: "Publish tables to a Postgres warehouse",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			exporter := export.NewExporter(dbConn.DB)
			if err := exporter.PublishPostgres(args[0]); err != nil {
				log.Fatalf("Warehouse publish failed: %v", err)
			}
		},
	})

	return exportCmd
}

func createReviewCmd() *cobra.Command {
	var reviewer string

	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the fuzzy-match review queue",
	}
	reviewCmd.PersistentFlags().StringVar(&reviewer, "reviewer", "", "Reviewer name recorded on decisions")

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "export [source] [output.csv]",
		Short: "Export pending decisions to a review CSV",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			queue := review.NewQueue(dbConn.DB)
			if _, err := queue.ExportCSV(args[0], args[1]); err != nil {
				log.Fatalf("Review export failed: %v", err)
			}
		},
	})

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "import [source] [reviewed.csv]",
		Short: "Apply a reviewed corrections CSV",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			queue := review.NewQueue(dbConn.DB)
			if _, err := queue.ImportCorrections(args[0], args[1], reviewer); err != nil {
				log.Fatalf("Review import failed: %v", err)
			}
		},
	})

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "interactive [source]",
		Short: "Review pending decisions at the terminal",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			queue := review.NewQueue(dbConn.DB)
			if err := queue.RunInteractive(args[0], reviewer, os.Stdin, 25); err != nil {
				log.Fatalf("Interactive review failed: %v", err)
			}
		},
	})

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show review queue statistics",
		Run: func(cmd *cobra.Command, args []string) {
			queue := review.NewQueue(dbConn.DB)
			if err := queue.Stats(); err != nil {
				log.Fatalf("Stats query failed: %v", err)
			}
		},
	})

	return reviewCmd
}

func createStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show working store record counts",
		Run: func(cmd *cobra.Command, args []string) {
			tables := []string{"crimes", "schools", "closures",
				"crime_school_match", "crime_nearest", "area_transfers", "match_results"}
			for _, table := range tables {
				var count int
				err := dbConn.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
				if err != nil {
					log.Printf("Error counting %s: %v", table, err)
					continue
				}
				fmt.Printf("%-20s %d\n", table, count)
			}
		},
	}
}
