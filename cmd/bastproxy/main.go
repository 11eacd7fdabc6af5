// Command bastproxy is the proxy's process entrypoint: flag/env/file
// configuration via cobra and viper, an interactive base-directory setup
// wizard, and status/doctor reporting, wrapping the long-running core in
// internal/app.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgBaseDir    string
	cfgMudAddr    string
	cfgListenAddr string
	cfgPassword   string
	cfgBanner     string
	cfgEphemeral  bool
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
)

var rootCmd = &cobra.Command{
	Use:           "bastproxy",
	Short:         "An intercepting MUD proxy with an in-process plugin fabric",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgBaseDir, "base-dir", "", "proxy base directory (settings db, logs, plugins)")
	rootCmd.PersistentFlags().StringVar(&cfgMudAddr, "mud-addr", "", "upstream mud server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&cfgListenAddr, "listen-addr", "", "downstream client listen address (host:port)")
	rootCmd.PersistentFlags().StringVar(&cfgPassword, "password", "", "preshared client login password")
	rootCmd.PersistentFlags().StringVar(&cfgBanner, "banner", "", "banner sent to clients on connect")
	rootCmd.PersistentFlags().BoolVar(&cfgEphemeral, "ephemeral", false, "use in-memory settings that do not survive a restart")

	_ = viper.BindPFlag("base_dir", rootCmd.PersistentFlags().Lookup("base-dir"))
	_ = viper.BindPFlag("mud_addr", rootCmd.PersistentFlags().Lookup("mud-addr"))
	_ = viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr"))
	_ = viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	_ = viper.BindPFlag("banner", rootCmd.PersistentFlags().Lookup("banner"))
	_ = viper.BindPFlag("ephemeral", rootCmd.PersistentFlags().Lookup("ephemeral"))

	viper.SetEnvPrefix("bastproxy")
	viper.AutomaticEnv()
	viper.SetConfigName("bastproxy")
	viper.SetConfigType("yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("bastproxy: "+err.Error()))
		os.Exit(1)
	}
}

// resolvedBaseDir returns viper's resolved base_dir, falling back to
// "." when the operator has configured nothing at all yet (init hasn't
// run, no flag, no env, no config file).
func resolvedBaseDir() string {
	if bd := viper.GetString("base_dir"); bd != "" {
		return bd
	}
	return "."
}
