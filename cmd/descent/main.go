package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/quadkit/descent/internal/config"
	"github.com/quadkit/descent/internal/experiment"
	"github.com/quadkit/descent/internal/storage"
	"github.com/quadkit/descent/internal/tui"
)

var (
	dataDir    string
	configFile string
	duration   float64
	rateHz     float64
	windBias   float64
	noStore    bool
	realtime   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "descent",
		Short: "quadrotor descent control lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".descent", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [controller]",
		Short: "run the scripted descent with a controller (pid|ude|adrc)",
		Args:  cobra.ExactArgs(1),
		RunE:  runDescent,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().Float64Var(&duration, "time", 0, "duration budget override (s)")
	runCmd.Flags().Float64Var(&rateHz, "rate", 0, "control rate override (Hz)")
	runCmd.Flags().Float64Var(&windBias, "wind", 0, "constant vertical disturbance (m/s^2)")
	runCmd.Flags().BoolVar(&noStore, "no-store", false, "skip saving the run")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "run at wall-clock rate through the control loop")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot altitude and thrust profiles of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "run every controller preset over the same maneuver",
		RunE:  compareControllers,
	}
	compareCmd.Flags().Float64Var(&duration, "time", 0, "duration budget override (s)")
	compareCmd.Flags().Float64Var(&windBias, "wind", 0, "constant vertical disturbance (m/s^2)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list controller presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live [controller]",
		Short: "run the descent with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	liveCmd.Flags().Float64Var(&windBias, "wind", 0, "constant vertical disturbance (m/s^2)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata path",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, compareCmd, presetsCmd, liveCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildConfig(controller string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		// A different controller than the file's invalidates its gain
		// table; the same controller keeps the file's tuning.
		if controller != "" && controller != cfg.Controller {
			cfg.Controller = controller
			cfg.Gains = config.GainDefaults(controller)
		}
	} else {
		cfg = config.Preset(controller)
		if cfg == nil {
			return nil, fmt.Errorf("unknown controller: %s (available: %v)", controller, config.ListPresets())
		}
	}
	if duration > 0 {
		cfg.Duration = duration
	}
	if rateHz > 0 {
		cfg.RateHz = rateHz
	}
	if windBias != 0 {
		cfg.Plant.WindBiasZ = windBias
	}
	return cfg, nil
}

func runDescent(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(args[0])
	if err != nil {
		return err
	}

	run, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	var result *experiment.Result
	if realtime {
		result, err = run.RunRealtime(context.Background())
	} else {
		result, err = run.Run(context.Background())
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "controller:\t%s\n", result.Controller)
	fmt.Fprintf(w, "duration:\t%.2f s (%d ticks)\n", result.Duration, len(result.Times))
	fmt.Fprintf(w, "final mode:\t%s\n", result.FinalMode)
	fmt.Fprintf(w, "iterations:\t%d\n", result.Status.Iterations)
	fmt.Fprintf(w, "saturations:\t%d\n", result.Status.Saturations)
	for name, v := range result.Metrics {
		fmt.Fprintf(w, "%s:\t%.4f\n", name, v)
	}
	w.Flush()

	if len(result.Heights) > 0 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(result.Heights,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("altitude (m)"),
		))
	}

	if noStore {
		return nil
	}
	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	runID, err := store.Save(result)
	if err != nil {
		return err
	}
	fmt.Printf("\nsaved run: %s\n", runID)
	return nil
}

func compareControllers(cmd *cobra.Command, args []string) error {
	var cfgs []*config.Config
	for _, name := range config.ListPresets() {
		cfg := config.Preset(name)
		if duration > 0 {
			cfg.Duration = duration
		}
		if windBias != 0 {
			cfg.Plant.WindBiasZ = windBias
		}
		cfgs = append(cfgs, cfg)
	}

	results, err := experiment.Compare(context.Background(), cfgs)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTROLLER\tDURATION\tFINAL MODE\tRMS Z ERROR\tSATURATIONS\tEFFORT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.2fs\t%s\t%.4f\t%.0f\t%.4f\n",
			r.Controller, r.Duration, r.FinalMode,
			r.Metrics["rms_z_error"], r.Metrics["thrust_saturations"], r.Metrics["control_effort"])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range results {
		if len(r.Heights) == 0 {
			continue
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(r.Heights,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption(r.Controller+" altitude (m)"),
		))
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONTROLLER\tDURATION\tFINAL MODE\tRMS Z ERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.2fs\t%s\t%.4f\n",
			r.ID, r.Controller, r.Duration, r.FinalMode, r.Metrics["rms_z_error"])
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	cols, err := store.LoadTicks(args[0])
	if err != nil {
		return err
	}

	for _, series := range []struct {
		col, caption string
	}{
		{"z", "altitude (m)"},
		{"target_z", "target altitude (m)"},
		{"thrust", "normalized thrust"},
	} {
		data := cols[series.col]
		if len(data) == 0 {
			continue
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(series.caption),
		))
		fmt.Println()
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(args[0])
	if err != nil {
		return err
	}
	run, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	return tui.Run(run, cfg.Dt())
}

func exportRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: controller=%s duration=%.2fs final=%s\n",
		meta.ID, meta.Controller, meta.Duration, meta.FinalMode)
	return nil
}
