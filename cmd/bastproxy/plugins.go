package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bastproxy/internal/app"
	"bastproxy/internal/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List plugins discovered under the base directory's plugin roots",
	RunE:  runPlugins,
}

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8a8a8a", Dark: "#5c6773"})

func runPlugins(cmd *cobra.Command, _ []string) error {
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

	plugins := a.Loader.List()
	if len(plugins) == 0 {
		fmt.Println(dimStyle.Render("no plugins found under the configured plugin roots"))
		return nil
	}

	for _, info := range plugins {
		state := dimStyle.Render("not imported")
		switch info.State {
		case plugin.StateLoaded:
			state = okStyle.Render("loaded")
		case plugin.StateImportedOnly:
			state = dimStyle.Render("imported, not loaded")
		}
		fmt.Printf("%-20s v%-8d %s  %s\n", info.ID, info.Version, state, dimStyle.Render(info.Dir))
		if info.Required {
			fmt.Printf("  %s\n", dimStyle.Render("required"))
		}
		if info.Author != "" || info.Purpose != "" {
			fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("%s — %s", info.Author, info.Purpose)))
		}
		if len(info.Dependencies) > 0 {
			fmt.Printf("  %s\n", dimStyle.Render("depends on: "+strings.Join(info.Dependencies, ", ")))
		}
	}
	return nil
}
