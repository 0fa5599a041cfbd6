// Package backup exports zstd-compressed JSON snapshots of the directory to
// an S3-compatible bucket (AWS S3 or MinIO).
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/JonMunkholm/idlookup/internal/core"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("backups are not configured")

// Source lists the records to snapshot. *core.Service satisfies it.
type Source interface {
	Records(ctx context.Context) ([]core.Record, error)
}

// Snapshot is the decoded content of one backup object.
type Snapshot struct {
	Version   int           `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	Records   []core.Record `json:"records"`
}

// Result describes one uploaded snapshot.
type Result struct {
	Key     string `json:"key"`
	Records int    `json:"records"`
	Bytes   int    `json:"bytes"`
}

// Config holds bucket settings.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. a MinIO URL
	PathStyle       bool
	Prefix          string
	AccessKeyID     string // optional, falls back to the default credential chain
	SecretAccessKey string
}

// Exporter writes snapshots of a Source to S3.
type Exporter struct {
	client *s3.Client
	bucket string
	prefix string
	source Source
	now    func() time.Time
}

// New builds an Exporter from cfg.
func New(ctx context.Context, cfg Config, source Source) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, ErrDisabled
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, source), nil
}

// NewWithClient builds an Exporter around an existing client.
func NewWithClient(client *s3.Client, bucket, prefix string, source Source) *Exporter {
	return &Exporter{
		client: client,
		bucket: bucket,
		prefix: prefix,
		source: source,
		now:    time.Now,
	}
}

// Export snapshots the source and uploads it under a timestamped key.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	records, err := e.source.Records(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read records: %w", err)
	}

	snap := Snapshot{Version: SnapshotVersion, CreatedAt: e.now().UTC(), Records: records}
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return Result{}, err
	}

	key := e.keyFor(snap.CreatedAt)
	size := buf.Len()
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", key, err)
	}

	return Result{Key: key, Records: len(records), Bytes: size}, nil
}

// Run exports a snapshot every interval until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("backup scheduler started", "interval", interval, "bucket", e.bucket)
	for {
		select {
		case <-ctx.Done():
			slog.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			res, err := e.Export(ctx)
			if err != nil {
				slog.Error("scheduled backup failed", "error", err)
				continue
			}
			slog.Info("backup uploaded", "key", res.Key, "records", res.Records, "bytes", res.Bytes)
		}
	}
}

func (e *Exporter) keyFor(t time.Time) string {
	prefix := e.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "directory-" + t.Format("20060102T150405Z") + ".json.zst"
}

// Encode writes snap as zstd-compressed JSON.
func Encode(w io.Writer, snap Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return snap, nil
}
