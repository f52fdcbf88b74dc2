package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webcash/go-webcash/internal/client"
	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/miner"
	"github.com/webcash/go-webcash/internal/wallet"
)

const maxWorkers = 256

var (
	flagWorkers       int
	flagServer        string
	flagWalletFile    string
	flagWebcashLog    string
	flagOrphanLog     string
	flagMaxDifficulty uint
	flagAcceptTerms   bool
)

var rootCmd = &cobra.Command{
	Use:   "webminer",
	Short: "Webcash mining daemon",
	RunE:  runMiner,
}

func init() {
	defaultWorkers := runtime.NumCPU()
	if defaultWorkers > maxWorkers {
		defaultWorkers = maxWorkers
	}
	rootCmd.Flags().IntVar(&flagWorkers, "workers", defaultWorkers, "number of mining threads")
	rootCmd.Flags().StringVar(&flagServer, "server", "https://webcash.tech", "server endpoint")
	rootCmd.Flags().StringVar(&flagWalletFile, "walletfile", "default_wallet", "base filename of wallet files")
	rootCmd.Flags().StringVar(&flagWebcashLog, "webcashlog", "webcash.log", "filename to place generated webcash claim codes")
	rootCmd.Flags().StringVar(&flagOrphanLog, "orphanlog", "orphans.log", "filename to place solved proof-of-works the server rejects, and their associated webcash claim codes")
	rootCmd.Flags().UintVar(&flagMaxDifficulty, "maxdifficulty", 80, "disable mining above this difficulty")
	rootCmd.Flags().BoolVar(&flagAcceptTerms, "acceptterms", false, "auto-accept initial or updated terms of service")
}

// confirmTerms fetches the current terms of service and makes sure the
// wallet has accepted them, prompting the user unless --acceptterms was
// given.
func confirmTerms(ctx context.Context, cl *client.Client, w *wallet.Wallet) error {
	fmt.Println("Fetching current terms of service from server.")
	terms, err := cl.TermsOfService(ctx)
	if err != nil {
		return fmt.Errorf("unable to fetch terms of service from server: %w", err)
	}

	accepted, err := w.AreTermsAccepted(terms)
	if err != nil {
		return err
	}
	if accepted {
		return nil
	}

	updated := ""
	if have, _ := w.HaveAcceptedTerms(); have {
		updated = " updated"
	}
	if flagAcceptTerms {
		fmt.Printf("Auto-accepting%s terms of service.\n", updated)
	} else {
		fmt.Printf("%s\n\nDo you accept these%s terms of service? (y/N): ",
			strings.TrimSpace(terms), updated)
		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			return errors.New("terms of service not accepted")
		}
	}
	return w.AcceptTerms(terms)
}

func runMiner(cmd *cobra.Command, args []string) error {
	if flagWorkers < 1 || flagWorkers > maxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", maxWorkers)
	}

	if err := logger.Init("webminer.log"); err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	defer logger.Cleanup()

	// Create the recovery logs up front so a permissions problem surfaces
	// before any webcash is at stake.
	for _, path := range []string{flagWebcashLog, flagOrphanLog} {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("unable to open %s: %w", path, err)
		}
		f.Close()
	}

	cl := client.New(flagServer)
	w, err := wallet.Open(flagWalletFile, cl)
	if err != nil {
		return fmt.Errorf("unable to open wallet: %w", err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := confirmTerms(ctx, cl, w); err != nil {
		return err
	}

	logger.Infof("Mining with %d workers against %s", flagWorkers, flagServer)
	m := miner.New(miner.Config{
		Workers:       flagWorkers,
		MaxDifficulty: flagMaxDifficulty,
		WebcashLog:    flagWebcashLog,
		OrphanLog:     flagOrphanLog,
	}, cl, w)

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutting down.")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
