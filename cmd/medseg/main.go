package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medseg/internal/logging"
	"medseg/internal/models"
	"medseg/pkg/analysis"
	"medseg/pkg/config"
	"medseg/pkg/imageio"
	"medseg/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "medseg.yaml", "YAML configuration file (defaults are used if it does not exist)")
	input := flag.String("input", "", "Image file, or directory of slices")
	algorithmName := flag.String("algorithm", string(analysis.OtsuWatershed), "One of: "+algorithmList())
	outputDir := flag.String("output", "", "Output directory (overrides output.dir)")
	seed := flag.Uint64("seed", 0, "Random seed for every request (default: derived from random.seed and the file name)")
	k := flag.Int("k", 0, "Number of k-means clusters (overrides kmeans.clusters)")
	iterations := flag.Int("iterations", 0, "Maximum k-means iterations (overrides kmeans.maxIterations)")
	components := flag.Int("components", 0, "Number of PCA components (overrides pca.components)")
	tolerance := flag.Int("tolerance", 0, "Region growing tolerance (overrides regionGrowing.tolerance)")
	seedX := flag.Int("seed-x", -1, "Region growing seed column, -1 for the image center")
	seedY := flag.Int("seed-y", -1, "Region growing seed row, -1 for the image center")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error")
	jsonLogs := flag.Bool("json-logs", false, "Write logs as JSON lines")
	extractSlices := flag.Bool("extract-slices", false, "Save x, y and z views of a slice directory")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command line values win over the configuration file
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["output"] {
		cfg.Output.Dir = *outputDir
	}
	if set["k"] {
		cfg.KMeans.Clusters = *k
	}
	if set["iterations"] {
		cfg.KMeans.MaxIterations = *iterations
	}
	if set["components"] {
		cfg.PCA.Components = *components
	}
	if set["tolerance"] {
		cfg.RegionGrowing.Tolerance = *tolerance
	}
	if set["seed-x"] {
		cfg.RegionGrowing.SeedX = *seedX
	}
	if set["seed-y"] {
		cfg.RegionGrowing.SeedY = *seedY
	}
	if set["log-level"] {
		cfg.Logging.Level = *logLevel
	}
	if set["json-logs"] {
		cfg.Logging.JSON = *jsonLogs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.FromConfig(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logging.Component(logger, "cli")

	algorithm, err := analysis.ParseAlgorithm(*algorithmName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid algorithm")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var explicitSeed *uint64
	if set["seed"] {
		explicitSeed = seed
	}

	if err := run(ctx, cfg, logger, algorithm, *input, explicitSeed, *extractSlices); err != nil {
		log.Fatal().Err(err).Msg("analysis failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, algorithm analysis.Algorithm,
	input string, seed *uint64, extractSlices bool) error {
	log := logging.Component(logger, "cli")

	info, err := os.Stat(input)
	if err != nil {
		return err
	}

	// Load the images, one or a numbered directory of slices
	var images []models.GrayscaleBuffer
	var names []string
	if info.IsDir() {
		images, names, err = imageio.LoadDir(input)
		if err != nil {
			return err
		}
	} else {
		img, err := imageio.Load(input)
		if err != nil {
			return err
		}
		images = []models.GrayscaleBuffer{img}
		names = []string{filepath.Base(input)}
	}
	log.Info().Int("images", len(images)).Str("input", input).Msg("loaded input")

	// PCA and the stack views need slices of one shape
	if info.IsDir() && (algorithm == analysis.PCA || extractSlices) {
		conformed, resized, err := imageio.Conform(images)
		if err != nil {
			return err
		}
		if resized {
			log.Warn().
				Int("width", conformed[0].Width).
				Int("height", conformed[0].Height).
				Msg("resized slices to the shape of the first one")
		}
		images = conformed
	}

	// PCA reduces the whole stack at once, the other algorithms run per image
	var reqs []analysis.Request
	if algorithm == analysis.PCA {
		reqs = append(reqs, analysis.Request{
			ID:        stem(names[0]),
			Algorithm: algorithm,
			Batch:     images,
			Seed:      seed,
		})
	} else {
		for i, img := range images {
			reqs = append(reqs, analysis.Request{
				ID:        stem(names[i]),
				Algorithm: algorithm,
				Image:     img,
				Seed:      seed,
			})
		}
	}

	analyzer := analysis.NewAnalyzer(cfg, logger)

	startTime := time.Now()
	outcomes, err := analyzer.RunBatch(ctx, reqs)
	if err != nil {
		return err
	}
	processingTime := time.Since(startTime)

	for _, out := range outcomes {
		if err := saveOutcome(cfg, out); err != nil {
			return err
		}
		printMetrics(out)
	}

	fmt.Printf("\nProcessed %d request(s) in %.2f seconds using up to %d cores\n",
		len(outcomes), processingTime.Seconds(), cfg.Processing.NumCores)
	fmt.Printf("Results saved to: %s\n", cfg.Output.Dir)

	// Extract and save views of the slice stack if requested
	if extractSlices && info.IsDir() {
		viewer, err := visualization.NewViewer(images)
		if err != nil {
			log.Warn().Err(err).Msg("slices cannot be stacked")
			return nil
		}
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.Dir, "slices", axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Warn().Err(err).Str("axis", axis).Msg("failed to save slice views")
			}
		}
	}

	return nil
}

// saveOutcome writes the primary rendering of an outcome and, when enabled,
// its intermediary images
func saveOutcome(cfg *config.Config, out *analysis.Outcome) error {
	base := filepath.Join(cfg.Output.Dir, fmt.Sprintf("%s_%s", out.ID, out.Algorithm))

	var primary models.GrayscaleBuffer
	intermediary := make(map[string]models.GrayscaleBuffer)

	switch {
	case out.Watershed != nil:
		primary = visualization.Labels(out.Watershed.Labels)
		intermediary["distance"] = visualization.Distance(out.Watershed.Distance, out.Source.Width, out.Source.Height)
		overlay, err := visualization.Boundaries(out.Source, out.Watershed.Labels)
		if err != nil {
			return err
		}
		intermediary["boundaries"] = overlay
		if out.Otsu != nil {
			intermediary["otsu"] = models.GrayscaleBuffer{Pix: out.Otsu.Mask, Width: out.Source.Width, Height: out.Source.Height}
		}
	case out.Otsu != nil:
		primary = models.GrayscaleBuffer{Pix: out.Otsu.Mask, Width: out.Source.Width, Height: out.Source.Height}
	case out.KMeans != nil:
		clusters, err := visualization.Clusters(out.KMeans.Labels, out.KMeans.Centroids, out.Source.Width, out.Source.Height)
		if err != nil {
			return err
		}
		primary = clusters
	case out.PCA != nil:
		primary = out.PCA.Reconstructed
	case out.Region != nil:
		primary = visualization.Mask(out.Region.Mask)
	default:
		return fmt.Errorf("outcome %s has no result", out.ID)
	}

	if err := imageio.SaveBuffer(base+".png", primary); err != nil {
		return fmt.Errorf("failed to save %s: %w", out.ID, err)
	}

	if cfg.Output.SaveIntermediaryResults {
		for stage, buf := range intermediary {
			if err := imageio.SaveBuffer(fmt.Sprintf("%s_%s.png", base, stage), buf); err != nil {
				return fmt.Errorf("failed to save %s %s: %w", out.ID, stage, err)
			}
		}
	}
	return nil
}

func printMetrics(out *analysis.Outcome) {
	m := out.Metrics
	fmt.Printf("\n%s (%s, seed %d, %.3fs)\n", out.ID, out.Algorithm, out.Seed, out.Duration.Seconds())
	fmt.Println(strings.Repeat("=", 40))

	if out.Otsu != nil {
		fmt.Printf("Otsu threshold: %d\n", out.Otsu.Threshold)
	}
	if out.KMeans != nil {
		fmt.Printf("Centroids: %.1f (iterations %d, converged %v)\n",
			out.KMeans.Centroids, out.KMeans.Iterations, out.KMeans.Converged)
	}
	if out.PCA != nil {
		fmt.Printf("Components: %d\n", out.PCA.Components)
		fmt.Printf("Explained variance: %.4f\n", m.ExplainedVariance)
		fmt.Printf("Root Mean Square Error (RMSE): %.6f\n", m.RMSE)
		fmt.Printf("Structural Similarity Index (SSIM): %.3f\n", m.SSIM)
		if out.Degenerate {
			fmt.Println("Single image: explained variance is illustrative only")
		}
		return
	}

	fmt.Printf("Foreground fraction: %.3f\n", m.ForegroundFraction)
	fmt.Printf("Regions: %d\n", m.RegionCount)
	for _, r := range m.Regions {
		fmt.Printf("  label %d: %d px, mean %.1f, std %.1f\n", r.Label, r.Size, r.MeanIntensity, r.StdDev)
	}
}

func algorithmList() string {
	names := make([]string, 0, len(analysis.Algorithms()))
	for _, a := range analysis.Algorithms() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func stem(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}
