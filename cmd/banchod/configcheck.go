package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsu/bancho/internal/config"
)

func configCheckCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "config-check",
		Short: "Load and validate the configuration, then print the resolved values",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			fmt.Printf("addr:                      %s\n", cfg.Addr)
			fmt.Printf("db_path:                   %s\n", cfg.DBPath)
			fmt.Printf("rpc:                       mode=%s addr=%s timeout=%ds\n", cfg.RPC.Mode, cfg.RPC.Addr, cfg.RPC.CallTimeoutSeconds)
			fmt.Printf("session_timeout:           %ds\n", cfg.SessionTimeoutSeconds)
			fmt.Printf("session_recycle_interval:  %ds\n", cfg.SessionRecycleIntervalSeconds)
			fmt.Printf("notify_messages_recycle:   %ds\n", cfg.NotifyMessagesRecycleSeconds)
			fmt.Printf("channel_messages_recycle:  %ds\n", cfg.ChannelMessagesRecycleSeconds)
			fmt.Printf("login_enabled:             %v\n", cfg.LoginEnabled)
			fmt.Printf("login_retry_max:           %d (expire %ds)\n", cfg.LoginRetryMax, cfg.LoginRetryExpireSeconds)
			fmt.Printf("online_users_limit:        %v (max %d)\n", cfg.OnlineUsersLimit, cfg.OnlineUsersMax)
			fmt.Printf("message_max_length:        %d\n", cfg.MessageMaxLength)
			fmt.Printf("sensitive_words:           %d configured\n", len(cfg.SensitiveWords))
			fmt.Printf("channels:                  %d configured\n", len(cfg.AutoJoinChannels))
			fmt.Println("configuration ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to configuration file (YAML)")
	return cmd
}
