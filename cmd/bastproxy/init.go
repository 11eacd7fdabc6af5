package main

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bastproxy/internal/basedir"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively set up a new base directory",
	RunE:  runInit,
}

type initAnswers struct {
	BaseDir    string
	MudAddr    string
	ListenAddr string
	Password   string
}

func runInit(_ *cobra.Command, _ []string) error {
	ans := initAnswers{
		BaseDir:    resolvedBaseDir(),
		ListenAddr: "0.0.0.0:4000",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Base directory").
				Description("Where settings, logs, and plugins live").
				Value(&ans.BaseDir).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("base directory is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Mud server address").
				Description("Upstream telnet address, host:port").
				Placeholder("mud.example.com:4000").
				Value(&ans.MudAddr).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("mud address is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Listen address").
				Description("Downstream address clients connect to").
				Value(&ans.ListenAddr),

			huh.NewInput().
				Title("Client password").
				Description("Leave blank to allow clients to connect without a challenge").
				EchoMode(huh.EchoModePassword).
				Value(&ans.Password),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("init wizard: %w", err)
	}

	meta := basedir.Default()
	if err := meta.Save(ans.BaseDir); err != nil {
		return fmt.Errorf("saving base directory metadata: %w", err)
	}

	cfgPath := filepath.Join(ans.BaseDir, "bastproxy.yaml")
	out, err := yaml.Marshal(map[string]string{
		"mud_addr":    ans.MudAddr,
		"listen_addr": ans.ListenAddr,
		"password":    ans.Password,
	})
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := writeFile(cfgPath, out); err != nil {
		return fmt.Errorf("writing %s: %w", cfgPath, err)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("initialized %s (run `bastproxy serve --base-dir %s` to start)", ans.BaseDir, ans.BaseDir)))
	return nil
}
