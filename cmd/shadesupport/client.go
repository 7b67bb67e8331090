package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Agalaxie/shadesupport/internal/apiclient"
	"github.com/Agalaxie/shadesupport/internal/config"
	"github.com/Agalaxie/shadesupport/internal/metrics"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client [url]",
		Short: "Fetch an API URL through the cache controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			baseURL, _ := cmd.Flags().GetString("base-url")

			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			return runClientFetch(cfg, baseURL, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("config", "", "Config file path")
	cmd.Flags().String("base-url", "http://localhost:8080", "API server base URL")

	return cmd
}

// runClientFetch performs a one-shot fetch with the configured retry policy
// and writes the payload to out.
func runClientFetch(cfg *config.Config, baseURL, url string, out io.Writer) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	c := apiclient.NewContext(baseURL, log, metrics.NewUnregistered())

	r := c.Open(url, apiclient.Options{
		Retries:        cfg.Client.Retries,
		RetryDelay:     time.Duration(cfg.Client.RetryDelayMS) * time.Millisecond,
		NoInitialDelay: true,
	})
	defer r.Close()
	r.Wait()

	if err := r.Err(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", r.Data())
	return nil
}
