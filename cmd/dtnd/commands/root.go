// Package commands implements the dtnd CLI (serve the node, manage
// scheduled contacts).
package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dtnd",
	Short: "dtnd runs a DTN bundle protocol node",
	Long: `dtnd is a Delay-Tolerant Networking node: it accepts and originates
bundles over a configurable set of convergence layer adapters (MTCP,
S-MTCP, TCPCLv3, TCPSPP, USB-MTCP) and stores the scheduled contacts
that drive its reconnect behaviour.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	},
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, values are also read from DTND_* env vars)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("cla", "", "CLA configuration string, e.g. mtcp:0.0.0.0,4556;tcpclv3:0.0.0.0,4556")
	rootCmd.PersistentFlags().String("local-eid", "", "this node's endpoint identifier, e.g. dtn://node-a")
	rootCmd.PersistentFlags().String("schedule-file", "", "path to the scheduled-contact ini file")
	rootCmd.PersistentFlags().Uint64("quota", 0, "bundle storage quota in bytes (0 uses the built-in default)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (empty disables)")
	rootCmd.PersistentFlags().String("admin-addr", "", "address to serve the read-only contact-registry API on, e.g. :9091 (empty disables)")
	rootCmd.PersistentFlags().String("admin-url", "", "base URL of a running node's admin API, for 'contact list', e.g. http://127.0.0.1:9091")

	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("cla", rootCmd.PersistentFlags().Lookup("cla"))
	viper.BindPFlag("local-eid", rootCmd.PersistentFlags().Lookup("local-eid"))
	viper.BindPFlag("schedule-file", rootCmd.PersistentFlags().Lookup("schedule-file"))
	viper.BindPFlag("quota", rootCmd.PersistentFlags().Lookup("quota"))
	viper.BindPFlag("metrics-addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
	viper.BindPFlag("admin-addr", rootCmd.PersistentFlags().Lookup("admin-addr"))
	viper.BindPFlag("admin-url", rootCmd.PersistentFlags().Lookup("admin-url"))

	viper.SetEnvPrefix("dtnd")
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			_ = viper.ReadInConfig()
		}
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(contactCmd)
}
