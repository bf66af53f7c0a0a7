package main

import (
	"context"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"pacotes-bot/internal/packages"
	"pacotes-bot/internal/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one renewal pass against the stored packages and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if cfg.TickTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.TickTimeout)
			defer cancel()
		}

		result, _ := worker.NewRenewer(a.store, worker.Options{}).RunOnce(ctx)
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

var (
	listGroup string
	listPhone string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the active packages as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return writeJSON(cmd.OutOrStdout(), selectPackages(a.store, listGroup, listPhone))
	},
}

func init() {
	listCmd.Flags().StringVar(&listGroup, "group", "", "only packages of this group")
	listCmd.Flags().StringVar(&listPhone, "phone", "", "only packages of this phone number")
}

type packageLister interface {
	ListActive(groupID string) []packages.Subscription
	FindByPhone(phone string) []packages.Subscription
}

func selectPackages(store packageLister, group, phone string) []packages.Subscription {
	if phone == "" {
		return store.ListActive(group)
	}
	var out []packages.Subscription
	for _, sub := range store.FindByPhone(phone) {
		if group == "" || sub.GroupID == group {
			out = append(out, sub)
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
