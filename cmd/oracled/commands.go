package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/GPTx-global/flight-oracle/oracle/config"
	"github.com/GPTx-global/flight-oracle/oracle/daemon"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

const (
	flagHome      = "home"
	flagLogFile   = "log-file"
	flagIndex     = "index"
	flagAirline   = "airline"
	flagFlight    = "flight"
	flagTimestamp = "timestamp"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oracled",
		Short:         "Flight status oracle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagHome, config.DefaultHome(), "directory for config and data")

	rootCmd.AddCommand(
		initCmd(),
		startCmd(),
		backfillCmd(),
		consultCmd(),
	)

	return rootCmd
}

// loadConfig reads <home>/config.toml and sets the log level from it.
func loadConfig(cmd *cobra.Command) error {
	home, err := cmd.Flags().GetString(flagHome)
	if err != nil {
		return err
	}
	if err := config.Load(home); err != nil {
		return err
	}
	log.InitLogger(config.LogLevel())
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := cmd.Flags().GetString(flagHome)
			if err != nil {
				return err
			}
			if err := config.WriteDefault(home); err != nil {
				return err
			}
			cmd.Printf("config written to %s\n", filepath.Join(home, config.FileName))
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Backfill the registry, then answer oracle requests until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			if toFile, _ := cmd.Flags().GetBool(flagLogFile); toFile {
				log.ResetLogger(config.Home())
			}
			config.Print()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			defer d.Stop()

			if err := d.Start(); err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			if err := d.Run(); err != nil {
				return err
			}
			log.Infof("oracled stopped")
			return nil
		},
	}
	cmd.Flags().Bool(flagLogFile, false, "write logs to <home>/logs instead of stdout")

	return cmd
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Replay every OracleRegistered event into the registry and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			d, err := daemon.New(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Stop()

			res, err := d.Backfill()
			if err != nil {
				return err
			}
			cmd.Printf("%d events replayed from block %d to %d, %d skipped, %d corrected\n",
				res.Events, res.FromBlock, res.Head, res.Skipped, res.Corrected)
			return nil
		},
	}
}

func consultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consult",
		Short: "Answer one synthetic status request with every oracle holding the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := loadConfig(cmd); err != nil {
				return err
			}

			d, err := daemon.New(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Stop()

			report, err := d.Consult(req)
			if err != nil {
				return err
			}
			cmd.Printf("%d attempted, %d accepted, %d rejected, %d transport failures\n",
				report.Attempts(), report.Count(types.Accepted), report.Count(types.Rejected), report.Count(types.TransportFailure))
			return nil
		},
	}
	cmd.Flags().Uint8(flagIndex, 0, "duty index of the request")
	cmd.Flags().String(flagAirline, "", "airline address")
	cmd.Flags().String(flagFlight, "", "flight as 0x bytes32 or a flight code")
	cmd.Flags().Uint64(flagTimestamp, 0, "flight timestamp, defaults to now")
	_ = cmd.MarkFlagRequired(flagIndex)
	_ = cmd.MarkFlagRequired(flagAirline)
	_ = cmd.MarkFlagRequired(flagFlight)

	return cmd
}

func requestFromFlags(cmd *cobra.Command) (types.StatusRequest, error) {
	var req types.StatusRequest

	index, err := cmd.Flags().GetUint8(flagIndex)
	if err != nil {
		return req, err
	}
	airline, _ := cmd.Flags().GetString(flagAirline)
	if !common.IsHexAddress(airline) {
		return req, types.ErrInvalidRequest.Wrapf("airline must be a hex address, got %q", airline)
	}
	flightArg, _ := cmd.Flags().GetString(flagFlight)
	flight, err := types.ParseFlight(flightArg)
	if err != nil {
		return req, err
	}
	timestamp, _ := cmd.Flags().GetUint64(flagTimestamp)
	if timestamp == 0 {
		timestamp = uint64(time.Now().Unix())
	}

	return types.StatusRequest{
		Index:     index,
		Airline:   common.HexToAddress(airline),
		Flight:    flight,
		Timestamp: timestamp,
	}, nil
}
