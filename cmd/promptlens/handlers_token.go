package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/promptlens/internal/auth"
)

func runToken(cmd *cobra.Command, subject string, expiry time.Duration, expirySet bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Collector.JWTSecret) == "" {
		return fmt.Errorf("collector.jwt_secret is not configured")
	}
	if !expirySet {
		expiry = cfg.Collector.TokenExpiry
	}
	service := auth.NewService(auth.Config{
		JWTSecret:   cfg.Collector.JWTSecret,
		TokenExpiry: expiry,
	})
	token, err := service.IssueToken(subject)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
