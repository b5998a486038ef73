package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
)

type MinioDisk struct {
	Client     *minio.Client
	BucketName string
	publicURL  string
}

func NewMinioDisk(ctx context.Context, cfg configuration.MinIOConfig, log zerolog.Logger) (*MinioDisk, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info().Str("bucket", cfg.BucketName).Msg("created bucket")
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.BucketName)
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("connected to MinIO")
	return &MinioDisk{Client: client, BucketName: cfg.BucketName, publicURL: publicURL}, nil
}

func (m *MinioDisk) Name() string { return "minio" }

func (m *MinioDisk) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *MinioDisk) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := m.Stat(ctx, key); err != nil {
		return nil, err
	}
	return m.Client.GetObject(ctx, m.BucketName, key, minio.GetObjectOptions{})
}

func (m *MinioDisk) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := m.Client.StatObject(ctx, m.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, ErrNotExist
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: info.Size}, nil
}

func (m *MinioDisk) Delete(ctx context.Context, key string) error {
	return m.Client.RemoveObject(ctx, m.BucketName, key, minio.RemoveObjectOptions{})
}

func (m *MinioDisk) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range m.Client.ListObjects(ctx, m.BucketName, minio.ListObjectsOptions{
		Prefix:    strings.TrimRight(prefix, "/") + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key != "" {
			out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size})
		}
	}
	return out, nil
}

func (m *MinioDisk) URL(key string) string {
	return m.publicURL + "/" + key
}

func (m *MinioDisk) Ping(ctx context.Context) error {
	_, err := m.Client.BucketExists(ctx, m.BucketName)
	return err
}
