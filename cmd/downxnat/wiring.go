package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"downxnat/internal/batch"
	"downxnat/internal/credentials"
	"downxnat/internal/ledger"
	"downxnat/internal/metrics"
	"downxnat/internal/storage"
	"downxnat/internal/xnat"
	"downxnat/pkg/kafkaclient"
)

type sessionOptions struct {
	username string
	scanType string
	reset    bool
}

func (c *commandContext) openSession(ctx context.Context, opts sessionOptions) (*xnat.Client, error) {
	username := opts.username
	if username == "" {
		username = c.cfg.Username
	}
	creds, err := credentials.NewCache(c.cfg.KeyringService).Resolve(username, opts.reset)
	if err != nil {
		return nil, err
	}
	return xnat.Connect(ctx, xnat.Options{
		BaseURL:            c.cfg.XNATURL,
		Username:           creds.Username,
		Password:           creds.Password,
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		Timeout:            c.cfg.Timeout,
		ScanType:           opts.scanType,
	})
}

// outputs holds the optional after-subject hooks and their resources.
type outputs struct {
	hooks   []batch.Hook
	metrics *metrics.Recorder
	closers []func() error
}

func (c *commandContext) openOutputs(ctx context.Context) (*outputs, error) {
	out := &outputs{}
	cfg := c.cfg

	if cfg.Minio.Enabled() {
		if err := cfg.ValidateMirror(); err != nil {
			return nil, err
		}
		s3, err := storage.NewS3Service(storage.Options{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if _, err := s3.CreateBucket(ctx, cfg.Minio.Bucket, ""); err != nil {
			return nil, err
		}
		out.hooks = append(out.hooks, &batch.MirrorHook{Mirror: s3, Bucket: cfg.Minio.Bucket})
	}

	if cfg.DatabaseURL != "" {
		store, err := ledger.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			out.close()
			return nil, err
		}
		out.closers = append(out.closers, store.Close)
		out.hooks = append(out.hooks, &batch.LedgerHook{Ledger: store})
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.EventTopic != "" {
		pub := kafkaclient.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
		out.closers = append(out.closers, pub.Close)
		out.hooks = append(out.hooks, &batch.EventHook{Publisher: pub})
	}

	if cfg.MetricsFile != "" {
		out.metrics = metrics.NewRecorder()
	}
	return out, nil
}

func (o *outputs) writeMetrics(path string) {
	if o.metrics == nil {
		return
	}
	if err := o.metrics.WriteFile(path); err != nil {
		log.Printf("Failed to write metrics: %v", err)
	}
}

func (o *outputs) close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			log.Printf("Failed to close output: %v", err)
		}
	}
}

// expandPath resolves a leading ~ and makes path absolute.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("directory is required")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
