package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/webcash/go-webcash/internal/api"
	"github.com/webcash/go-webcash/internal/config"
	"github.com/webcash/go-webcash/internal/economy"
	"github.com/webcash/go-webcash/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "webcashd",
	Short: "Webcash ledger server",
	Long:  `The central webcash server: accepts mining reports, replaces claim codes, and serves economy statistics.`,
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().Int("port", 8000, "port to listen on")
	rootCmd.Flags().String("database", "webcashd.db", "path of the economy database")
	viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("database", rootCmd.Flags().Lookup("database"))
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.LoadServerConfig(); err != nil {
		return err
	}
	if err := logger.Init(viper.GetString("log_file")); err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	defer logger.Cleanup()

	econ, err := economy.Open(economy.Options{
		Path:              viper.GetString("database"),
		InitialDifficulty: viper.GetUint("difficulty"),
	})
	if err != nil {
		return err
	}
	defer econ.Close()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := api.NewServer(addr, api.NewAPI(econ,
		viper.GetString("terms_html"),
		viper.GetString("terms_text")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Infof("webcashd listening on %s (difficulty=%d, reports=%d)",
			addr, econ.Difficulty(), econ.NumReports())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
