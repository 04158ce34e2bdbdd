package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "streamdrop: %v\n", err)
		os.Exit(1)
	}
}

// composeFile is shared by every stack subcommand.
var composeFile string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamdrop",
		Short: "StreamDrop development CLI",
		Long: `Development helpers for the StreamDrop stack: docker compose lifecycle, tests,
running the binaries directly, and inspecting captured multipart bodies offline.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newStackCmd("build [service...]", "Build images via docker compose", "build", func(c *cobra.Command) []string {
			if v, _ := c.Flags().GetBool("no-cache"); v {
				return []string{"--no-cache"}
			}
			return nil
		}, func(c *cobra.Command) {
			c.Flags().Bool("no-cache", false, "Disable Docker build cache")
		}),
		newStackCmd("up [service...]", "Start the api, worker and their backing services", "up", func(c *cobra.Command) []string {
			var extra []string
			if skip, _ := c.Flags().GetBool("skip-build"); !skip {
				extra = append(extra, "--build")
			}
			if d, _ := c.Flags().GetBool("detached"); d {
				extra = append(extra, "-d")
			}
			return extra
		}, func(c *cobra.Command) {
			c.Flags().BoolP("detached", "d", true, "Run docker compose in detached mode")
			c.Flags().Bool("skip-build", false, "Skip rebuilding images before starting")
		}),
		newStackCmd("down", "Stop the stack", "down", func(c *cobra.Command) []string {
			if v, _ := c.Flags().GetBool("volumes"); v {
				return []string{"-v"}
			}
			return nil
		}, func(c *cobra.Command) {
			c.Flags().BoolP("volumes", "v", false, "Remove stack volumes")
		}),
		newStackCmd("logs [service...]", "Show service logs", "logs", func(c *cobra.Command) []string {
			if v, _ := c.Flags().GetBool("follow"); v {
				return []string{"-f"}
			}
			return nil
		}, func(c *cobra.Command) {
			c.Flags().Bool("follow", false, "Stream logs continuously")
		}),
		newTestCmd(),
		newRunCmd(),
		newInspectCmd(),
	)
	return cmd
}

// newStackCmd builds a docker compose subcommand. flags derives the extra
// compose arguments from the parsed flags; positional args are appended.
func newStackCmd(use, short, verb string, flags func(*cobra.Command) []string, define func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := append([]string{"compose", "-f", composeFile, verb}, flags(cmd)...)
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	define(cmd)
	return cmd
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return runCommand(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one of the binaries with go run",
	}
	for _, name := range []string{"api", "worker", "server"} {
		path := "./cmd/" + name
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "go run " + path,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Stdin = os.Stdin
	return c.Run()
}
