package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	contactsync "github.com/glimte/contact-sync-go"
	"github.com/glimte/contact-sync-go/contracts"
	"github.com/glimte/contact-sync-go/internal/config"
	"github.com/glimte/contact-sync-go/messaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		cfgPath string
		url     string
		timeout int
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:   "contact-sync",
		Short: "Drive the contact sync protocol against RabbitMQ",
		Long: `contact-sync publishes contact mutation requests onto the sync exchange
and listens for the device-side agent's callbacks.`,
		Version:       fmt.Sprintf("%s (built: %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "", "RabbitMQ connection URL (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&timeout, "timeout", "t", 0, "Listening window in seconds (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	loadConfig := func() (*config.Config, error) {
		cfg := config.Default()
		if cfgPath != "" {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		if url != "" {
			cfg.URL = url
		}
		if timeout > 0 {
			cfg.ListenTimeoutSeconds = timeout
		}
		return cfg, nil
	}

	newLogger := func() *slog.Logger {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	connect := func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*contactsync.Client, error) {
		client, err := contactsync.Connect(ctx, cfg.URL,
			contactsync.WithClientLogger(logger),
			contactsync.WithTopology(cfg.Topology()),
			contactsync.WithPublishDelay(cfg.PublishDelay()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		return client, nil
	}

	sendCmd := &cobra.Command{
		Use:   "send [contact-id]",
		Short: "Publish one test contact and listen for its callback",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			defer client.Close()

			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			request, err := newTestContact(id)
			if err != nil {
				return err
			}

			handler := messaging.NewCollectingHandler()
			published, err := client.Driver().RunScenario(ctx,
				[]*contracts.SyncRequest{request}, cfg.ListenTimeout(), tee(handler))
			if err != nil {
				return err
			}

			fmt.Printf("published %d request(s), received %d callback(s)\n",
				len(published), handler.Count())
			return nil
		},
	}

	var count int
	sendBatchCmd := &cobra.Command{
		Use:   "send-batch",
		Short: "Publish several test contacts, then one listening window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			defer client.Close()

			requests := make([]*contracts.SyncRequest, 0, count)
			for i := 0; i < count; i++ {
				request, err := newTestContact("")
				if err != nil {
					return err
				}
				requests = append(requests, request)
			}

			handler := messaging.NewCollectingHandler()
			published, err := client.Driver().RunScenario(ctx, requests, cfg.ListenTimeout(), tee(handler))
			if err != nil {
				return err
			}

			fmt.Printf("published %d request(s), received %d callback(s)\n",
				len(published), handler.Count())
			return nil
		},
	}
	sendBatchCmd.Flags().IntVarP(&count, "count", "n", 5, "Number of test contacts to publish")

	deleteCmd := &cobra.Command{
		Use:   "delete <contact-id>",
		Short: "Publish a delete request and listen for its callback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			defer client.Close()

			request, err := contracts.NewDeleteRequest(args[0])
			if err != nil {
				return err
			}

			handler := messaging.NewCollectingHandler()
			if _, err := client.Driver().RunScenario(ctx,
				[]*contracts.SyncRequest{request}, cfg.ListenTimeout(), tee(handler)); err != nil {
				return err
			}

			fmt.Printf("delete published for %s, received %d callback(s)\n",
				args[0], handler.Count())
			return nil
		},
	}

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for callbacks without publishing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Printf("listening for callbacks for %s...\n", cfg.ListenTimeout())
			handled, err := client.Listener().Listen(ctx, cfg.ListenTimeout(),
				messaging.CallbackHandlerFunc(printCallback))
			if err != nil {
				return err
			}

			fmt.Printf("received %d callback(s)\n", handled)
			return nil
		},
	}

	rootCmd.AddCommand(sendCmd, sendBatchCmd, deleteCmd, listenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM so an
// interrupted listen still releases the connection on the way out.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// tee prints each callback and records it in the collecting handler.
func tee(collector *messaging.CollectingHandler) messaging.CallbackHandler {
	return messaging.CallbackHandlerFunc(func(ctx context.Context, callback *contracts.SyncCallback) error {
		if err := printCallback(ctx, callback); err != nil {
			return err
		}
		return collector.HandleCallback(ctx, callback)
	})
}

func printCallback(_ context.Context, callback *contracts.SyncCallback) error {
	outcome := "OK"
	if !callback.Succeeded() {
		outcome = "FAILED"
	}

	fmt.Printf("[%s] contact %s: %s\n", outcome, callback.ContactID, callback.Message)
	if callback.Error != "" {
		fmt.Printf("        error: %s\n", callback.Error)
	}
	if callback.AndroidContactID != "" {
		fmt.Printf("        android contact id: %s\n", callback.AndroidContactID)
	}
	fmt.Printf("        device: %s at %s\n",
		callback.DeviceID, time.UnixMilli(callback.Timestamp).Format(time.RFC3339))
	return nil
}

// newTestContact fabricates a realistic create_or_update request. An empty
// id generates a fresh test id.
func newTestContact(id string) (*contracts.SyncRequest, error) {
	if id == "" {
		id = fmt.Sprintf("test_%s", uuid.New().String()[:8])
	}

	return contracts.NewCreateOrUpdateRequest(id, contracts.ContactFields{
		DisplayName: fmt.Sprintf("Test Contact %s", id),
		PhoneNumbers: []contracts.PhoneNumber{
			{Number: fmt.Sprintf("+1555%s", uuid.New().String()[:7]), Type: "mobile", Label: "Personal"},
			{Number: fmt.Sprintf("+1555%s", uuid.New().String()[:7]), Type: "work", Label: "Office"},
		},
		Emails: []contracts.EmailAddress{
			{Address: fmt.Sprintf("%s@example.com", id), Type: "home"},
			{Address: fmt.Sprintf("%s@work.com", id), Type: "work"},
		},
		Addresses: []contracts.PostalAddress{
			{Street: "123 Test Street", City: "Test City", State: "TC", PostalCode: "12345", Country: "USA", Type: "home"},
		},
		Organization: "Test Company",
		JobTitle:     "Software Developer",
		Notes:        fmt.Sprintf("Test contact created at %s", time.Now().Format(time.RFC3339)),
	})
}
