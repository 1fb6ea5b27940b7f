package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/engine"
	"github.com/mperelman/chronicle/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "chronicle"}

	root.AddCommand(serveCMD(), queryCMD(), buildIndexCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "[SERVER] ", log.LstdFlags)
			eng, err := engine.New(cmd.Context(), cfg, log.New(os.Stderr, "[ENGINE] ", log.LstdFlags))
			if err != nil {
				return err
			}
			defer eng.Close()
			if addr == "" {
				addr = cfg.Server.Address
			}
			return server.Run(eng, addr, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}

func queryCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer one question from the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			eng, err := engine.New(cmd.Context(), cfg, log.New(os.Stderr, "[ENGINE] ", log.LstdFlags))
			if err != nil {
				return err
			}
			defer eng.Close()

			question := ""
			for i, a := range args {
				if i > 0 {
					question += " "
				}
				question += a
			}
			answer, err := eng.Query(cmd.Context(), question)
			if err != nil {
				return err
			}
			fmt.Println(answer.Text)
			for _, c := range answer.Failed() {
				fmt.Fprintf(os.Stderr, "criterion %s failed: %s\n", c.Name, c.Reason)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}

func buildIndexCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "build-index [corpus.jsonl]",
		Short: "Ingest a JSONL corpus and build the term index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			eng, err := engine.New(cmd.Context(), cfg, log.New(os.Stderr, "[ENGINE] ", log.LstdFlags))
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.BuildIndex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d chunks into %s\n", n, cfg.Index.Path)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}
