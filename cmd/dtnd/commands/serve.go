package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/pkg/adminapi"
	"github.com/go-dtn/upcn/pkg/manager"
	"github.com/go-dtn/upcn/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node, accepting and forwarding bundles over its configured CLAs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	claConfig := viper.GetString("cla")
	if claConfig == "" {
		return fmt.Errorf("--cla is required")
	}
	localEID := viper.GetString("local-eid")
	if localEID == "" {
		return fmt.Errorf("--local-eid is required")
	}

	quotaMax := viper.GetUint64("quota")
	if quotaMax == 0 {
		quotaMax = dtn.DefaultBundleQuota
	}
	quota := dtn.NewQuota(quotaMax)

	var reg *metrics.Registry
	metricsAddr := viper.GetString("metrics-addr")
	if metricsAddr != "" {
		reg = metrics.NewRegistry()
	}

	mgr, err := manager.New(claConfig, manager.Config{
		Logger:   slog.Default(),
		Quota:    quota,
		Metrics:  reg,
		LocalEID: dtn.EID(localEID),
	})
	if err != nil {
		return fmt.Errorf("configuring CLAs: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if scheduleFile := viper.GetString("schedule-file"); scheduleFile != "" {
		contacts, err := manager.LoadScheduleFile(scheduleFile)
		if err != nil {
			return fmt.Errorf("loading schedule file: %w", err)
		}
		logrus.WithField("contacts", len(contacts)).Info("loaded scheduled contacts")
		go manager.RunSchedule(ctx, contacts,
			func(c manager.ScheduledContact) {
				logrus.WithFields(logrus.Fields{"cla": c.CLAName, "peer": c.PeerEID, "cla_addr": c.CLAAddr}).Info("scheduled contact window opened")
				if err := mgr.StartScheduledContact(c.CLAName, c.PeerEID, c.CLAAddr); err != nil {
					logrus.WithError(err).Warn("failed to start scheduled contact")
				}
			},
			func(c manager.ScheduledContact) {
				logrus.WithFields(logrus.Fields{"cla": c.CLAName, "peer": c.PeerEID, "cla_addr": c.CLAAddr}).Info("scheduled contact window closed")
				if err := mgr.EndScheduledContact(c.CLAName, c.PeerEID, c.CLAAddr); err != nil {
					logrus.WithError(err).Warn("failed to end scheduled contact")
				}
			},
		)
	}

	if adminAddr := viper.GetString("admin-addr"); adminAddr != "" {
		admin := adminapi.NewServer(mgr)
		go func() {
			if err := admin.ListenAndServe(adminAddr); err != nil {
				logrus.WithError(err).Error("admin API server stopped")
			}
		}()
	}

	if reg != nil {
		go func() {
			if err := reg.Serve(metricsAddr); err != nil {
				logrus.WithError(err).Error("metrics server stopped")
			}
		}()
		logrus.WithField("addr", metricsAddr).Info("serving metrics")
	}

	onBundle := func(b *dtn.Bundle) {
		logrus.WithFields(logrus.Fields{
			"source":      b.Source,
			"destination": b.Destination,
		}).Info("bundle delivered")
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- mgr.Run(ctx, onBundle) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logrus.WithField("cla", claConfig).Info("dtnd is running")

	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig).Info("shutting down")
		cancel()
		return <-serveDone
	case err := <-serveDone:
		return err
	}
}
