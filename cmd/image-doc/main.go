package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit codes
const (
	exitOK      = 0
	exitFailed  = 1
	exitInvalid = 2
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
	workers    int
	workspace  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "image-doc",
		Short: "Turn images into documents for the assembly pipeline",
		Long: strings.TrimSpace(`
Validate, resize and convert images, write primary images and thumbnails into
a workspace, and describe the result as a Document with one Page per image.

Configuration is read from an optional YAML file (--config) and from
IMAGE_SERVICE_* environment variables, e.g. IMAGE_SERVICE_PROCESSING_MAX_WIDTH.
`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (YAML)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Development logging at debug level")
	pf.IntVar(&g.workers, "workers", 0, "Worker pool size (default from config)")
	pf.StringVarP(&g.workspace, "workspace", "w", "", "Workspace root (default from config)")

	root.AddCommand(
		newProcessCmd(g),
		newValidateCmd(g),
		newFormatsCmd(g),
		newConfigCmd(g),
		newInfoCmd(g),
		newServeCmd(g),
		newWatchCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image-doc %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}

// exitCode maps an error to the process exit status: validation and
// configuration errors exit 2, everything else 1.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Kind {
		case apperrors.KindValidation, apperrors.KindConfig:
			return exitInvalid
		}
	}
	return exitFailed
}

func run(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitCode(err)
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}
