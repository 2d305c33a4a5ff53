package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/go-dtn/upcn/pkg/adminapi"
	"github.com/go-dtn/upcn/pkg/manager"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage the scheduled-contact file read by dtnd serve --schedule-file",
}

var contactAddCmd = &cobra.Command{
	Use:   "add <cla-name> <peer-eid> <cla-addr> <start-rfc3339> <end-rfc3339>",
	Short: "Append a scheduled contact window to the schedule file",
	Args:  cobra.ExactArgs(5),
	RunE:  runContactAdd,
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scheduled contact windows in the schedule file",
	Args:  cobra.NoArgs,
	RunE:  runContactList,
}

func init() {
	contactCmd.AddCommand(contactAddCmd)
	contactCmd.AddCommand(contactListCmd)
}

func scheduleFilePath() (string, error) {
	path := viper.GetString("schedule-file")
	if path == "" {
		return "", fmt.Errorf("--schedule-file is required")
	}
	return path, nil
}

func runContactAdd(cmd *cobra.Command, args []string) error {
	path, err := scheduleFilePath()
	if err != nil {
		return err
	}
	claName, peerEID, claAddr, startStr, endStr := args[0], args[1], args[2], args[3], args[4]

	if _, err := time.Parse(time.RFC3339, startStr); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if _, err := time.Parse(time.RFC3339, endStr); err != nil {
		return fmt.Errorf("end: %w", err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return fmt.Errorf("loading schedule file: %w", err)
	}
	section, err := f.NewSection(peerEID + "@" + claAddr)
	if err != nil {
		return fmt.Errorf("adding section: %w", err)
	}
	section.Key("cla").SetValue(claName)
	section.Key("peer_eid").SetValue(peerEID)
	section.Key("cla_addr").SetValue(claAddr)
	section.Key("start").SetValue(startStr)
	section.Key("end").SetValue(endStr)

	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("saving schedule file: %w", err)
	}
	fmt.Printf("added contact window %s <-> %s on %s\n", peerEID, claAddr, claName)
	return nil
}

func runContactList(cmd *cobra.Command, args []string) error {
	if adminURL := viper.GetString("admin-url"); adminURL != "" {
		return runContactListLive(adminURL)
	}
	path, err := scheduleFilePath()
	if err != nil {
		return err
	}
	contacts, err := manager.LoadScheduleFile(path)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLA\tPEER\tCLA ADDR\tSTART\tEND")
	for _, c := range contacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.CLAName, c.PeerEID, c.CLAAddr, c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
	}
	return w.Flush()
}

// runContactListLive queries a running node's admin API for the live
// contact registry, rather than the on-disk schedule that drove it.
func runContactListLive(adminURL string) error {
	views, err := adminapi.NewClient(adminURL).Contacts()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLA\tKEY\tPEER\tCLA ADDR\tSTATE\tIN CONTACT\tOPPORTUNISTIC\tRETRIES")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\t%d\n", v.CLA, v.Key, v.PeerEID, v.CLAAddr, v.State, v.InContact, v.Opportunistic, v.RetryCount)
	}
	return w.Flush()
}
