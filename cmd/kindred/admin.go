package main

import (
	"fmt"

	"github.com/goblincore/kindred"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a companion and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), engineOptions{})
			if err != nil {
				return err
			}
			defer engine.Close()

			c, err := engine.CreateCompanion(cmd.Context(), viper.GetString("name"))
			if err != nil {
				return err
			}
			return printJSON(companionToMap(c))
		},
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run one decay sweep, for one companion or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), engineOptions{})
			if err != nil {
				return err
			}
			defer engine.Close()

			var res kindred.SweepResult
			if id := viper.GetString("companion"); id != "" {
				res, err = engine.RunDecaySweep(cmd.Context(), id)
			} else {
				res, err = engine.SweepAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Printf("%d updated, %d deleted\n", res.Updated, res.Deleted)
			return nil
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Print a companion, its profile and its memory context",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := viper.GetString("companion")
			if id == "" {
				return fmt.Errorf("--companion is required")
			}

			engine, err := openEngine(cmd.Context(), engineOptions{})
			if err != nil {
				return err
			}
			defer engine.Close()

			c, err := engine.GetCompanion(cmd.Context(), id)
			if err != nil {
				return err
			}
			profile, err := engine.Profile(cmd.Context(), id)
			if err != nil {
				return err
			}
			memories, err := engine.MemoryContext(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"companion":      companionToMap(c),
				"profile":        profile,
				"memory_context": memories,
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(createCmd, sweepCmd, inspectCmd)

	createCmd.Flags().String("name", "", "companion display name")
	sweepCmd.Flags().String("companion", "", "companion ID (default: all)")
	inspectCmd.Flags().String("companion", "", "companion ID")
}
