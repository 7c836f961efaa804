package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tarsier-dev/tarsier/internal/adb"
	"github.com/tarsier-dev/tarsier/internal/api"
	"github.com/tarsier-dev/tarsier/internal/config"
	"github.com/tarsier-dev/tarsier/internal/emulator"
	tlog "github.com/tarsier-dev/tarsier/internal/log"
	"github.com/tarsier-dev/tarsier/internal/memory"
	"github.com/tarsier-dev/tarsier/internal/output"
	"github.com/tarsier-dev/tarsier/internal/pipeline"
	"github.com/tarsier-dev/tarsier/internal/profile"
	"github.com/tarsier-dev/tarsier/internal/scan"
	"github.com/tarsier-dev/tarsier/internal/ui/colorize"
	"github.com/tarsier-dev/tarsier/internal/ui/pause"
)

var (
	verbose       bool
	quiet         bool
	skipProvision bool
	keepDump      bool
	outputDir     string
	profileFile   string
	apkDir        string
	scanPID       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tarsier [profile]",
		Short: "Recover your own app credentials from an emulated Android session",
		Long: `Tarsier recovers the account token and broker credentials your mobile
app holds in memory, so you can use them in your own integrations.

It provisions an Android emulator, installs the app, and waits while YOU
log in with your own account. It then reads a fixed window of the app
process's heap over adb, scans it for known credential patterns, checks
the recovered token against the vendor cloud API, and writes the results
to a .env file plus a readable report.

Only use this against your own account on your own device. The token it
recovers is the one your phone already holds.

Examples:
  tarsier home                 # the home/FPV app profile
  tarsier fly --skip-provision # reuse an already-booted emulator
  tarsier scan heap.bin        # offline scan of a saved memory dump
  tarsier validate US_...      # check a token you already have`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
		RunE:                  runExtract,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (summary only)")
	rootCmd.PersistentFlags().StringVar(&profileFile, "profile-file", "", "load an app profile from a YAML file")
	rootCmd.Flags().BoolVar(&skipProvision, "skip-provision", false, "assume a booted, rooted emulator with the app installed")
	rootCmd.Flags().BoolVar(&keepDump, "keep-dump", false, "keep the pulled memory dump for offline scanning")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for .env and report files (default from TARSIER_OUTPUT_DIR)")
	rootCmd.Flags().StringVar(&apkDir, "apk-dir", ".", "directory searched for the app APK")

	scanCmd := &cobra.Command{
		Use:   "scan <dump.bin>",
		Short: "Scan a saved memory dump, or a local process with --pid",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}
	scanCmd.Flags().IntVar(&scanPID, "pid", 0, "scan a local process via /proc instead of a dump file (needs root)")

	validateCmd := &cobra.Command{
		Use:   "validate <token>",
		Short: "Validate a token against the cloud API",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in app profiles",
		Args:  cobra.NoArgs,
		RunE:  runProfiles,
	}

	rootCmd.AddCommand(scanCmd, validateCmd, profilesCmd)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, pause.ErrAborted) && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s %v\n", colorize.Error("error:"), err)
		}
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) (*profile.Profile, *config.Config, error) {
	tlog.Init(verbose)

	var prof *profile.Profile
	var err error
	switch {
	case profileFile != "":
		prof, err = profile.LoadFile(profileFile)
	case len(args) > 0:
		prof, err = profile.Get(args[0])
	default:
		prof, err = profile.Get("home")
	}
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	return prof, cfg, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	prof, cfg, err := setup(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := adb.New()
	emu, err := emulator.New(prof.AVD)
	if err != nil && !skipProvision {
		return err
	}

	client := api.New(cfg.ResolveAPIBase(prof.APIBase), cfg.Locale)

	p := &pipeline.Pipeline{
		Profile:  prof,
		Config:   cfg,
		ADB:      a,
		Emulator: emu,
		Reader: &memory.DumpReader{
			ADB:       a,
			LocalDir:  cfg.OutputDir,
			KeepLocal: keepDump,
		},
		Validator:     client,
		APKDir:        apkDir,
		OutputDir:     cfg.OutputDir,
		SkipProvision: skipProvision,
		Hooks: pipeline.Hooks{
			OnState:    announceState,
			Checkpoint: pause.Wait,
		},
	}

	if !quiet {
		fmt.Printf("\n%s tarsier ─ app credential recovery\n", colorize.Header("▶"))
		fmt.Printf("  %s %s (%s)\n", colorize.Detail("Profile:"), prof.Name, prof.Package)
		fmt.Printf("  %s %s\n", colorize.Detail("API:"), cfg.ResolveAPIBase(prof.APIBase))
		fmt.Println()
	}

	arts, runErr := p.Run(ctx)

	if arts != nil {
		printResults(arts, client, cfg.OutputDir)
	}
	if runErr != nil {
		var valErr *api.ValidationError
		if errors.As(runErr, &valErr) && arts != nil {
			fmt.Fprintf(os.Stderr, "\n%s token did not validate (%s); extracted values were still written\n",
				colorize.Warn("warning:"), valErr.Kind)
		} else if !errors.Is(runErr, pause.ErrAborted) && !errors.Is(runErr, context.Canceled) {
			fmt.Fprintf(os.Stderr, "\n%s failed during %s\n",
				colorize.Warn("warning:"), colorize.Name(string(p.StateNow())))
		}
		if emu != nil && !skipProvision {
			shutdownEmulator(ctx, emu, a)
		}
		return runErr
	}

	if emu != nil && !skipProvision {
		shutdownEmulator(ctx, emu, a)
	}
	return nil
}

func announceState(s pipeline.State, detail string) {
	if quiet {
		return
	}
	fmt.Printf("%s %s %s\n", colorize.Step("●"), colorize.Name(string(s)), colorize.Detail(detail))
}

func printResults(arts *output.Artifacts, client *api.Client, dir string) {
	if verbose && client != nil && len(client.LastBody) > 0 {
		fmt.Println()
		fmt.Println(colorize.Border("── api response ──"))
		fmt.Println(colorize.JSON(string(client.LastBody)))
	}
	if !quiet {
		fmt.Println()
		fmt.Println(arts.Summary())
	}
	fmt.Printf("%s %s\n", colorize.Success("✓"), arts.EnvPath(dir))
	fmt.Printf("%s %s\n", colorize.Success("✓"), arts.ReportPath(dir))
}

func shutdownEmulator(ctx context.Context, emu *emulator.Emulator, a *adb.ADB) {
	if !pause.Confirm("Shut down the emulator?") {
		return
	}
	emu.Stop(ctx, a)
}

func runScan(cmd *cobra.Command, args []string) error {
	prof, cfg, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	// scan has no positional profile arg; TARSIER_PROFILE selects one
	if profileFile == "" {
		if name := os.Getenv("TARSIER_PROFILE"); name != "" {
			if prof, err = profile.Get(name); err != nil {
				return err
			}
		}
	}

	var buf []byte
	switch {
	case scanPID > 0:
		win, err := memory.ProcReader{}.Read(cmd.Context(), scanPID, prof.WindowOffset, prof.WindowSize)
		if err != nil {
			if regions, mapsErr := memory.Regions(scanPID); mapsErr == nil && len(regions) > 0 {
				fmt.Fprintf(os.Stderr, "%s process has %d mapped regions, first at %s; the window may not fit\n",
					colorize.Detail("hint:"), len(regions), tlog.Hex(regions[0].Start))
			}
			return err
		}
		buf = win.Data
	case len(args) == 1:
		if buf, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("read dump: %w", err)
		}
	default:
		return fmt.Errorf("give a dump file or --pid")
	}

	rec := scan.Extract(buf, prof.Fields)
	if rec.Get(profile.PrimaryField) == "" {
		return scan.ErrTokenNotFound
	}

	arts := &output.Artifacts{
		Profile: prof,
		Record:  rec,
		APIBase: cfg.ResolveAPIBase(prof.APIBase),
		Locale:  cfg.Locale,
		When:    time.Now(),
	}
	fmt.Println(arts.Summary())
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	prof, cfg, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	token := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(cfg.ResolveAPIBase(prof.APIBase), cfg.Locale)
	broker, err := client.BrokerToken(ctx, token)
	if err != nil {
		if verbose && len(client.LastBody) > 0 {
			fmt.Println(colorize.JSON(string(client.LastBody)))
		}
		return err
	}

	fmt.Printf("%s token is valid\n", colorize.Success("✓"))
	fmt.Printf("  %s %s\n", colorize.Detail("broker:"),
		colorize.Value(fmt.Sprintf("%s:%d", broker.Domain, broker.Port)))
	if broker.UserUUID != "" {
		fmt.Printf("  %s %s\n", colorize.Detail("user uuid:"), colorize.Value(broker.UserUUID))
	}
	if verbose && len(client.LastBody) > 0 {
		fmt.Println()
		fmt.Println(colorize.JSON(string(client.LastBody)))
	}
	return nil
}

func runProfiles(cmd *cobra.Command, args []string) error {
	for _, name := range profile.Names() {
		p, err := profile.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", colorize.Name(fmt.Sprintf("%-8s", name)), colorize.Detail(p.Description))
		fmt.Printf("          %s %s  %s %d MiB @ %s\n",
			colorize.Detail("package:"), p.Package,
			colorize.Detail("window:"), p.WindowSize>>20, tlog.Hex(p.WindowOffset))
	}
	return nil
}
