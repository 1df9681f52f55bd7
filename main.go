package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"gptedit/internal/device"
	"gptedit/internal/session"
	"gptedit/internal/table"
)

var errUsage = errors.New("usage")

// Version is set at build time with -ldflags="-X main.Version=v1.2.3".
var Version string

var mainCmd = &cobra.Command{
	Use:           "gptedit [flags] DEVICE",
	Short:         "Interactive GPT and MBR partition table editor",
	Long:          "Interactive GPT and MBR partition table editor.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Args: func(cmd *cobra.Command, args []string) error {
		switch {
		case viper.GetBool(keyList) && len(args) != 0:
			return fmt.Errorf("%w: --%s takes no device", errUsage, keyList)
		case !viper.GetBool(keyList) && len(args) != 1:
			return fmt.Errorf("%w: expected exactly one device, got %d arguments", errUsage, len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool(keyList) {
			return listDisks()
		}
		return run(cmd.Context(), args[0])
	},
}

func init() {
	if mainCmd.Version == "" {
		mainCmd.Version = "dev"
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	kflags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(kflags)
	mainCmd.PersistentFlags().AddGoFlagSet(kflags)
	kflags.Set("logtostderr", "true")

	flags := mainCmd.PersistentFlags()
	flags.String(keyBackupDir, filepath.Join(dataDir(), "backups"), "Directory for the backups taken before each write")
	flags.String(keyBackupCompression, "none", "Compression of backup blobs: none|gzip|zlib|zstd|bzip2|s2|snappy")
	flags.String(keyHistoryFile, filepath.Join(dataDir(), "history"), "Command history file")
	flags.Bool(keyReadOnly, false, "Open the device read-only; write is refused")
	flags.BoolP(keyYes, "y", false, "Do not ask for confirmation before writing")
	flags.BoolP(keyList, "l", false, "List the disks on this system and exit")

	for _, name := range []string{
		"alsologtostderr", "add_dir_header", "log_file", "log_file_max_size",
		"one_output", "skip_headers", "skip_log_headers", "log_backtrace_at",
		"log_dir", "logtostderr", "stderrthreshold", "vmodule",
	} {
		flags.MarkHidden(name)
	}

	mainCmd.SetUsageTemplate(mainCmd.UsageTemplate() + "\n" + device.Help())
	mainCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})
	viper.BindPFlags(flags)
}

func listDisks() error {
	disks, err := device.ListDisks()
	if err != nil {
		return err
	}
	if len(disks) == 0 {
		fmt.Println("No disks found")
		return nil
	}
	fmt.Println(renderDisks(disks))
	return nil
}

func run(ctx context.Context, name string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		text.DisableColors()
		color.NoColor = true
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := device.Open(name, cfg.ReadOnly)
	if err != nil {
		return err
	}
	defer dev.Close()

	sess, err := session.New(dev, cfg.session())
	if err != nil {
		return err
	}
	reportLoad(sess.Report)

	return runREPL(ctx, newApp(sess, cfg))
}

// reportLoad tells the user what had to be repaired while loading.
func reportLoad(r *table.LoadReport) {
	switch r.State {
	case table.StateValid:
		return
	case table.StateBlankFallback:
		fmt.Fprintln(os.Stderr, color.HiYellowString("No valid GPT found; starting from a blank table"))
	default:
		fmt.Fprintln(os.Stderr, color.HiYellowString("Partition table %s; write to make the repair permanent", r.State))
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintln(os.Stderr, color.HiYellowString("  %v", d))
	}
}

func main() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s := <-sigs
		klog.V(1).Infof("Exiting on signal %v", s)
		cancel()
		<-time.After(1 * time.Second)
		os.Exit(1)
	}()

	if err := mainCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.HiRedString("Error: %v", err))
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, mainCmd.UsageString())
		}
		os.Exit(1)
	}
}
