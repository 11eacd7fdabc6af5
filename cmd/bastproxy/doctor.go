package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	glamour "charm.land/glamour/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bastproxy/internal/app"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report the health of a base directory without starting the proxy",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	baseDir := resolvedBaseDir()
	viper.AddConfigPath(baseDir)
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := app.Config{
		BaseDir:    baseDir,
		MudAddr:    viper.GetString("mud_addr"),
		ListenAddr: viper.GetString("listen_addr"),
		Password:   viper.GetString("password"),
		Banner:     viper.GetString("banner"),
		Ephemeral:  viper.GetBool("ephemeral"),
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring base directory: %w", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Loader.Discover(); err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# bastproxy doctor\n\n")
	fmt.Fprintf(&b, "- base directory: `%s`\n", baseDir)
	fmt.Fprintf(&b, "- mud address: `%s`\n", cfg.MudAddr)
	fmt.Fprintf(&b, "- listen address: `%s`\n", cfg.ListenAddr)
	fmt.Fprintf(&b, "- client password: %s\n", passwordState(cfg.Password))
	fmt.Fprintf(&b, "- settings backend: %s\n", providerKind(cfg.Ephemeral))

	plugins := a.Loader.List()
	fmt.Fprintf(&b, "\n## plugins (%d discovered)\n\n", len(plugins))
	if len(plugins) == 0 {
		fmt.Fprintf(&b, "none found under the configured plugin roots\n")
	} else {
		for _, info := range plugins {
			fmt.Fprintf(&b, "- `%s` v%d", info.ID, info.Version)
			if info.Required {
				fmt.Fprintf(&b, " (required)")
			}
			if len(info.Dependencies) > 0 {
				fmt.Fprintf(&b, " (depends on %s)", strings.Join(info.Dependencies, ", "))
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	fmt.Fprintf(&b, "\n## capabilities\n\n")
	for _, name := range []string{"net.mud", "net.client"} {
		for _, full := range a.Capabilities.List(name) {
			fmt.Fprintf(&b, "- `%s`\n", full)
		}
	}

	rendered, renderErr := glamour.Render(b.String(), "dark")
	if renderErr != nil {
		fmt.Print(b.String())
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func passwordState(password string) string {
	if password == "" {
		return "none (open access)"
	}
	return "configured"
}

func providerKind(ephemeral bool) string {
	if ephemeral {
		return "in-memory (--ephemeral, settings will not survive a restart)"
	}
	if cgoProvider {
		return "dolt (persistent)"
	}
	return "in-memory (cgo disabled, settings will not survive a restart)"
}
