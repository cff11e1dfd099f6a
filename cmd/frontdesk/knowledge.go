package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	knowledgeUser    string
	knowledgeRefresh bool
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage a user's knowledge index",
}

var knowledgeUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document to the user's index",
	Args:  cobra.ExactArgs(1),
	RunE:  runKnowledgeUpload,
}

var knowledgeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the user's indexed files",
	RunE:  runKnowledgeStatus,
}

func init() {
	knowledgeCmd.PersistentFlags().StringVarP(&knowledgeUser, "user", "u", "", "User id that owns the index")
	_ = knowledgeCmd.MarkPersistentFlagRequired("user")
	knowledgeStatusCmd.Flags().BoolVar(&knowledgeRefresh, "refresh", false, "Re-read the listing from the index")
}

func runKnowledgeUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newStorageApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.indexer == nil {
		return errors.New("OPENAI_API_KEY is required for knowledge uploads")
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	file, err := a.indexer.Upload(ctx, knowledgeUser, filepath.Base(args[0]), content)
	if err != nil {
		return err
	}
	return printJSON(cmd, file)
}

func runKnowledgeStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newStorageApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.indexer == nil {
		return errors.New("OPENAI_API_KEY is required for knowledge status")
	}

	record, err := a.indexer.Status(ctx, knowledgeUser, knowledgeRefresh)
	if err != nil {
		return err
	}
	return printJSON(cmd, record)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
