package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chazu/loam/pkg/export"
	"github.com/chazu/loam/pkg/jobfile"
	"github.com/chazu/loam/pkg/kernel/sdfx"
	"github.com/chazu/loam/pkg/pipeline"
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/server"
)

// DefaultAddr is used by serve when neither --addr nor LOAM_ADDR is set.
const DefaultAddr = ":8080"

var (
	profilePath string
	jobFormat   string
	outputPath  string
	overwrite   bool
	serveAddr   string
	listKeys    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Render a script or job file to G-code",
	Long: `Render a .loam script or a JSON, YAML or msgpack job file to G-code.
The program is written to stdout unless --output names a file. An existing
file is never replaced without --overwrite.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, result, err := runFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := report(cmd.ErrOrStderr(), result); err != nil {
			return err
		}
		if outputPath == "" || outputPath == "-" {
			_, err := io.WriteString(cmd.OutOrStdout(), result.GCode)
			return err
		}
		path, err := app.Save(result, export.Target{
			Dir:       filepath.Dir(outputPath),
			Name:      filepath.Base(outputPath),
			Ext:       filepath.Ext(outputPath),
			Overwrite: overwrite,
		})
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file...>",
	Short: "Run the pipeline without writing G-code",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s:\n", path)
			_, result, err := runFile(cmd.Context(), path)
			if err == nil {
				err = report(cmd.ErrOrStderr(), result)
			}
			if err != nil {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "  %v\n", err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generate and validate endpoints over HTTP",
	Long: `Serve POST /api/generate, POST /api/validate and GET /health.
Settings in a .env file in the working directory are loaded first.
The listen address comes from --addr, then LOAM_ADDR, then ` + DefaultAddr + `.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		addr := serveAddr
		if addr == "" {
			addr = os.Getenv("LOAM_ADDR")
		}
		if addr == "" {
			addr = DefaultAddr
		}
		base, err := baseProfile()
		if err != nil {
			return err
		}

		srv := server.New(sdfx.New(), base, slog.Default())
		errc := make(chan error, 1)
		go func() { errc <- srv.Start(addr) }()
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "listening on %s\n", addr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the effective machine profile as YAML",
	Long: `Print the default profile, or the default with --profile applied, as
YAML. The output is a complete profile file that can be edited and passed
back with --profile.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listKeys {
			for _, k := range profile.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		}
		p, err := baseProfile()
		if err != nil {
			return err
		}
		data, err := profile.Marshal(p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, validateCmd, serveCmd, profileCmd} {
		cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "YAML profile applied on top of the defaults")
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{generateCmd, validateCmd} {
		cmd.Flags().StringVarP(&jobFormat, "format", "f", "", "Job file format (json, yaml, msgpack); default from the extension")
	}
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write G-code to this file instead of stdout")
	generateCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the output file if it exists")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $LOAM_ADDR or "+DefaultAddr+")")
	profileCmd.Flags().BoolVar(&listKeys, "keys", false, "List the option names scripts accept instead")
}

// baseProfile is the default profile with --profile applied.
func baseProfile() (profile.Profile, error) {
	if profilePath == "" {
		return profile.Default(), nil
	}
	return profile.Load(profilePath)
}

// isScript reports whether path names a script rather than a job file.
func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".loam", ".zy":
		return true
	}
	return false
}

// runFile generates path. The returned error covers only input problems;
// pipeline failures are reported through the result's Status.
func runFile(ctx context.Context, path string) (*App, GenerateResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if isScript(path) && jobFormat == "" {
		base, err := baseProfile()
		if err != nil {
			return nil, GenerateResult{}, err
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, GenerateResult{}, err
		}
		app := NewAppWith(sdfx.New(), base, slog.Default())
		app.startup(ctx)
		result := app.Generate(string(source))
		if result.Name == "" {
			result.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return app, result, nil
	}

	job, err := loadJob(path)
	if err != nil {
		return nil, GenerateResult{}, err
	}
	app := NewAppWith(sdfx.New(), job.Profile, slog.Default())
	app.startup(ctx)
	return app, app.GenerateJob(job), nil
}

func loadJob(path string) (pipeline.Job, error) {
	var job pipeline.Job
	var err error
	if jobFormat == "" {
		job, err = jobfile.Load(path)
	} else {
		var format jobfile.Format
		if format, err = jobfile.ParseFormat(jobFormat); err != nil {
			return pipeline.Job{}, err
		}
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return pipeline.Job{}, err
		}
		job, err = jobfile.Decode(data, format)
		if job.Name == "" {
			job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}
	if err != nil {
		return pipeline.Job{}, err
	}
	if profilePath != "" {
		data, err := os.ReadFile(profilePath)
		if err != nil {
			return pipeline.Job{}, fmt.Errorf("profile: %w", err)
		}
		if job.Profile, err = profile.ParseOnto(job.Profile, data); err != nil {
			return pipeline.Job{}, fmt.Errorf("profile: %s: %w", profilePath, err)
		}
	}
	return job, nil
}

// report prints warnings, errors and a stats summary to w, and returns an
// error when the run failed.
func report(w io.Writer, r GenerateResult) error {
	warn := color.New(color.FgYellow)
	for _, m := range r.Warnings {
		if m.Line > 0 {
			warn.Fprintf(w, "  warning: line %d: %s\n", m.Line, m.Message)
		} else {
			warn.Fprintf(w, "  warning: %s\n", m.Message)
		}
	}
	bad := color.New(color.FgRed)
	for _, e := range r.Errors {
		bad.Fprintf(w, "  line %d:%d: %s\n", e.Line, e.Col, e.Message)
	}
	if !r.Status.OK {
		return fmt.Errorf("%s: %s", r.Status.Kind, r.Status.Message)
	}
	st := r.Stats
	color.New(color.FgGreen).Fprintf(w,
		"  ok: %d layers, %d curves, %d lines, %.1f mm printed, %.1f mm travel, %d retractions, ~%s\n",
		st.Layers, st.Curves, st.Lines, st.PrintLength, st.Travel, st.Retractions,
		time.Duration(st.Time*float64(time.Second)).Round(time.Second).String())
	return nil
}
