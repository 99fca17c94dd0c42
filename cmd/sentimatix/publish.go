package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Rishav0123/sentimatix/internal/database/kafka"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [articles.json]",
	Short: "Send news articles to the ingest topic",
	Long:  `Reads one article object or an array of them and publishes each to the Kafka topic the ingest service consumes.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	articles, err := decodeArticles(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kc, err := kafka.New(&cfg.Databases.Kafka, logger.Discard())
	if err != nil {
		return err
	}
	defer kc.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	if err := kafka.NewArticlePublisher(kc.Writer).Publish(ctx, articles...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d articles to %s\n", len(articles), cfg.Databases.Kafka.Topic)
	return nil
}

// decodeArticles accepts a JSON object or an array of objects.
func decodeArticles(raw []byte) ([]models.NewsArticle, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if raw[0] == '[' {
		var out []models.NewsArticle
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var a models.NewsArticle
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return []models.NewsArticle{a}, nil
}
