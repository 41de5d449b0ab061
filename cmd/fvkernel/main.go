// Command fvkernel assembles finite volume residuals of single-phase porous
// media flow problems described by a YAML config.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/partitions"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "fvkernel",
		Short:        "Finite volume residual assembly for porous media flow",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "run config (YAML), defaults when empty")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override the configured log format (text, json)")

	root.AddCommand(newAssembleCmd(opts), newMeshCmd(opts), newConfigCmd(opts))
	return root
}

// load reads the config and builds the logger, writing logs to stderr
func (o *options) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, nil, err
		}
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(stderr, handlerOpts)
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(stderr, handlerOpts)
	}
	return cfg, slog.New(handler), nil
}

func newAssembleCmd(opts *options) *cobra.Command {
	var (
		dump    bool
		element int
	)
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble the residual of the initial state",
		Long: `Builds the mesh, grid geometry, volume variables and flux cache of the
config, assembles the global residual once and prints per-equation norms.
With --element the local residual and its finite difference derivative of
one element are printed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			p, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			res, s, err := p.assemble(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dofs %d, equations %d, flux evaluations %d, interface slots %d\n",
				p.gg.NumDofs(), cfg.NumEq(), s.Evaluations, p.asm.Cache().InterfaceSlots())
			for eq := range s.Sum {
				fmt.Fprintf(out, "eq %d: sum %.6e  l2 %.6e  max %.6e\n", eq, s.Sum[eq], s.Norm2[eq], s.NormInf[eq])
			}
			if dump {
				fmt.Fprintf(out, "residual\n%v\n", mat.Formatted(res, mat.Squeeze()))
			}
			if element < 0 {
				return nil
			}
			if element >= p.gg.NumElements() {
				return fmt.Errorf("element %d outside [0, %d)", element, p.gg.NumElements())
			}

			cur, prev := p.states()
			dofs, local, err := p.asm.ElementResidual(element, cur, prev, cfg.Time.Dt)
			if err != nil {
				return err
			}
			d, err := p.asm.LocalDerivative(element, cur, prev, cfg.Time.Dt, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "element %d rows %v\n%v\n", element, dofs, mat.Formatted(local, mat.Squeeze()))
			fmt.Fprintf(out, "derivative rows %v cols %v\n%v\n", d.Rows, d.Cols, mat.Formatted(d.Block, mat.Squeeze()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the full residual")
	cmd.Flags().IntVar(&element, "element", -1, "print the local residual and derivative of an element")
	return cmd
}

func newMeshCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mesh",
		Short: "Print mesh and partition statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			m, err := cfg.BuildMesh()
			if err != nil {
				return err
			}
			layout, err := cfg.Layout(m)
			if err != nil {
				return err
			}
			stats, err := layout.AnalyzeInterfaces(partitions.NewMeshConnectivity(m))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, m.String())
			fmt.Fprintf(out, "partitions %d\n", layout.NumPartitions)
			for _, part := range layout.Partitions {
				fmt.Fprintf(out, "partition %d: %d elements", part.ID, part.NumElements)
				for _, g := range part.TypeGroups {
					fmt.Fprintf(out, ", %s %d", g.ElementType, g.Count)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, stats.String())
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
