package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafiqlabs/rafiq/internal/config"
	"github.com/rafiqlabs/rafiq/internal/settings"
)

var settingsConfigPath string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change user preferences",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	RunE: func(_ *cobra.Command, _ []string) error {
		sc, cleanup, err := buildComponents(settingsConfigPath)
		if err != nil {
			return err
		}
		defer cleanup()

		s := sc.Settings.Load(context.Background())
		fmt.Printf("theme:          %s\n", s.Theme)
		fmt.Printf("fontSize:       %s (%dpt)\n", s.FontSize, settings.FontSizePoints(s.FontSize))
		fmt.Printf("responseStyle:  %s\n", s.ResponseStyle)
		fmt.Printf("madhab:         %s\n", s.Madhab)
		if s.Memory != "" {
			fmt.Printf("memory:         %s\n", s.Memory)
		}
		if s.LanguageStyle != "" {
			fmt.Printf("languageStyle:  %s\n", s.LanguageStyle)
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one preference",
	Long: `Change one preference and persist the full record.

Keys: theme (auto|light|dark), fontSize (small|medium|large),
responseStyle, madhab, memory, languageStyle.`,
	Args: cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		sc, cleanup, err := buildComponents(settingsConfigPath)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		s := sc.Settings.Load(ctx)

		key, value := args[0], args[1]
		switch key {
		case "theme":
			if value != settings.ThemeAuto && value != settings.ThemeLight && value != settings.ThemeDark {
				return fmt.Errorf("theme must be auto, light, or dark")
			}
			s.Theme = value
		case "fontSize":
			if value != settings.FontSmall && value != settings.FontMedium && value != settings.FontLarge {
				return fmt.Errorf("fontSize must be small, medium, or large")
			}
			s.FontSize = value
		case "responseStyle":
			s.ResponseStyle = value
		case "madhab":
			s.Madhab = value
		case "memory":
			s.Memory = value
		case "languageStyle":
			s.LanguageStyle = value
		default:
			return fmt.Errorf("unknown setting %q", key)
		}

		sc.Settings.Save(ctx, s)
		fmt.Printf("%s = %s\n", key, value)
		return nil
	},
}

func init() {
	settingsCmd.PersistentFlags().StringVarP(&settingsConfigPath, "config", "c", config.DefaultConfigPath(), "path to config file")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}
