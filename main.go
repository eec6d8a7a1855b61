package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManiacGamer156/architectury-loom/at"
	"github.com/ManiacGamer156/architectury-loom/config"
	"github.com/ManiacGamer156/architectury-loom/mapping"
	"github.com/ManiacGamer156/architectury-loom/patch"
	"github.com/ManiacGamer156/architectury-loom/pipeline"
	"github.com/ManiacGamer156/architectury-loom/remap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "architectury-loom",
		Short:         "Produces patched, merged, remapped minecraft jars for forge development",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		refreshDeps bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full patched-jar pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}

			provider, err := buildProvider(f, refreshDeps || f.RefreshDeps)
			if err != nil {
				return err
			}
			if err := provider.Run(); err != nil {
				return err
			}

			slog.Info("pipeline finished",
				"merged", provider.MergedJar(),
				"clientExtra", provider.ClientExtraJar())
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "path to the build config")
	cmd.Flags().BoolVar(&refreshDeps, "refresh-deps", false, "delete all cached jars and rebuild")
	return cmd
}

func buildProvider(f *config.File, refreshDeps bool) (*pipeline.Provider, error) {
	mappings := mapping.NewFileProvider().
		Add("official", "srg", f.Mappings.ToSrg).
		Add("srg", "official", f.Mappings.ToOfficial)

	return pipeline.NewProvider(pipeline.Config{
		WorkDir:           f.WorkDir,
		ForgeVersion:      f.ForgeVersion,
		ClientJar:         f.Minecraft.ClientJar,
		ServerJar:         f.Minecraft.ServerJar,
		ClientPatches:     f.Patches.Client,
		ServerPatches:     f.Patches.Server,
		ForgeUniversalJar: f.Forge.UniversalJar,
		ForgeUserdevJar:   f.Forge.UserdevJar,
		Libraries:         f.Libraries,
		RefreshDeps:       refreshDeps,
		Mappings:          mappings,
		Applier: &patch.CommandApplier{
			Java: f.Patches.JavaBinary,
			Tool: f.Patches.ToolJar,
		},
		AccessTransformer: &at.WideningTransformer{Logger: slog.Default()},
		NewRemapper: func(tree *mapping.Tree, opts remap.Options) (remap.JarRemapper, error) {
			return remap.NewRemapper(tree, opts, slog.Default())
		},
		Logger: slog.Default(),
	})
}
