package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/snoopsim/coherence"
	"github.com/sarchlab/snoopsim/driver"
	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/report"
	"github.com/sarchlab/snoopsim/trace"
)

var (
	verbose    bool
	httpAddr   string
	runTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use: "snoopsim <MESI|DRAGON> <input_file_base> <cache_size_bytes> " +
		"<associativity> <block_size_bytes> [data_folder]",
	Short: "Cycle-accurate snooping cache-coherence simulator.",
	Args:  cobra.RangeArgs(5, 6),
	RunE:  runSimulation,
}

func init() {
	loadEnv()

	rootCmd.Flags().BoolVar(&verbose, "verbose", false,
		"log trace loading and cache geometry details")
	rootCmd.Flags().StringVar(&httpAddr, "http", "",
		"serve the run's report as JSON at this address while it runs")
	rootCmd.Flags().DurationVar(&runTimeout, "timeout", 0,
		"abort the run if it has not finished after this long")
}

// Execute runs the root command. A configuration or trace error exits
// the process with status 1; success exits 0.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("verbose") && os.Getenv("SNOOPSIM_VERBOSE") == "1" {
		verbose = true
	}
	trace.Verbose = verbose

	proto, ok := coherence.ParseProtocol(args[0])
	if !ok {
		return fmt.Errorf("snoopsim: unknown protocol %q, want MESI or DRAGON", args[0])
	}
	base := args[1]

	cacheBytes, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("snoopsim: bad cache size %q: %w", args[2], err)
	}
	associativity, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("snoopsim: bad associativity %q: %w", args[3], err)
	}
	blockBytes, err := strconv.Atoi(args[4])
	if err != nil {
		return fmt.Errorf("snoopsim: bad block size %q: %w", args[4], err)
	}

	dataFolder := "."
	if len(args) == 6 {
		dataFolder = args[5]
	}

	geo, err := geometry.New(cacheBytes, associativity, blockBytes)
	if err != nil {
		return err
	}
	if verbose {
		log.Printf(
			"snoopsim: initialised %d L1 cache(s) of %d bytes with %d associativity, "+
				"%d blocks of %d bytes or %d words, grouped into %d sets",
			trace.NumCores, geo.CacheBytes, geo.Associativity, geo.NumBlocks,
			geo.BlockBytes, geo.WordsPerBlock, geo.NumSets)
	}

	ctx := context.Background()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	traces, err := trace.Load(ctx, dataFolder, base)
	if err != nil {
		return err
	}

	sim, err := driver.NewSimulation(proto, geo, traces)
	if err != nil {
		return err
	}

	if httpAddr != "" {
		srv, err := report.Listen(httpAddr, sim.Report())
		if err != nil {
			return err
		}
		atexit.Register(func() { _ = srv.Close() })
	}

	result, err := sim.Run(ctx)
	if err != nil {
		return err
	}

	return report.Print(os.Stdout, result)
}
