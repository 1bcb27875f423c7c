package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarExtension 返回允许上传的头像类型对应的扩展名
func AvatarExtension(contentType string) (string, bool) {
	ext, ok := avatarExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// MinIOClient 头像对象存储
type MinIOClient struct {
	client        *minio.Client
	bucketName    string
	publicBaseURL string
}

func normalizeMinIOEndpoint(endpoint string, secure bool) (string, bool, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return endpoint, secure, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("minio endpoint parse: %w", err)
	}
	return parsed.Host, parsed.Scheme == "https", nil
}

// NewMinIOClient 连接 MinIO 并确保 bucket 存在; publicBaseURL 为空时使用 endpoint/bucket
func NewMinIOClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName, publicBaseURL string) (*MinIOClient, error) {
	host, secure, err := normalizeMinIOEndpoint(endpoint, getEnvBool("MINIO_SECURE", true))
	if err != nil {
		return nil, err
	}

	minioClient, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		slog.Info("Created MinIO bucket", "bucket", bucketName)
	}

	if publicBaseURL == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		publicBaseURL = scheme + "://" + host + "/" + bucketName
	}

	return &MinIOClient{
		client:        minioClient,
		bucketName:    bucketName,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// ObjectURL 拼接对象的公开访问地址
func (m *MinIOClient) ObjectURL(objectName string) string {
	return m.publicBaseURL + "/" + strings.TrimLeft(objectName, "/")
}

// PutAvatar 上传头像并返回公开地址, 对象名为 avatars/<userID>/<uuid><ext>
func (m *MinIOClient) PutAvatar(ctx context.Context, userID int64, contentType string, reader io.Reader, size int64) (string, error) {
	ext, ok := AvatarExtension(contentType)
	if !ok {
		return "", fmt.Errorf("minio upload: unsupported content type %q", contentType)
	}
	objectName := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext)
	_, err := m.client.PutObject(ctx, m.bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio upload: %w", err)
	}
	return m.ObjectURL(objectName), nil
}

// RemoveObject 删除对象
func (m *MinIOClient) RemoveObject(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove: %w", err)
	}
	return nil
}
