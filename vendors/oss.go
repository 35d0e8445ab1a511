package vendors

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/log"
)

var (
	ossClient     *OSSClient
	ossClientOnce sync.Once
	ossLogger     = log.GetLogger("OSS")
)

// OSSClient wraps the Aliyun OSS client used for off-site bundle backups
type OSSClient struct {
	client *oss.Client
	bucket string
}

// GetOSSClient returns the singleton OSS client
func GetOSSClient() *OSSClient {
	ossClientOnce.Do(func() {
		cfg := config.Get()

		if cfg.OSSAccessKeyID == "" || cfg.OSSAccessKeySecret == "" || cfg.OSSBucket == "" {
			ossLogger.Warn().Msg("OSS credentials not configured, backup disabled")
			return
		}

		region := cfg.OSSRegion
		if region == "" {
			region = "oss-cn-beijing"
		}

		credProvider := credentials.NewStaticCredentialsProvider(
			cfg.OSSAccessKeyID,
			cfg.OSSAccessKeySecret,
		)

		ossCfg := oss.LoadDefaultConfig().
			WithCredentialsProvider(credProvider).
			WithRegion(region)

		if cfg.OSSEndpoint != "" {
			ossCfg = ossCfg.WithEndpoint(cfg.OSSEndpoint)
		}

		ossClient = &OSSClient{
			client: oss.NewClient(ossCfg),
			bucket: cfg.OSSBucket,
		}

		ossLogger.Info().
			Str("region", region).
			Str("bucket", cfg.OSSBucket).
			Msg("OSS initialized")
	})

	return ossClient
}

// Upload stores an object under the given key
func (c *OSSClient) Upload(ctx context.Context, objectKey string, body io.Reader) error {
	if c == nil {
		return fmt.Errorf("OSS client not initialized")
	}

	putReq := &oss.PutObjectRequest{
		Bucket: oss.Ptr(c.bucket),
		Key:    oss.Ptr(objectKey),
		Body:   body,
	}

	if _, err := c.client.PutObject(ctx, putReq); err != nil {
		return fmt.Errorf("failed to upload to OSS: %w", err)
	}

	ossLogger.Info().
		Str("ossKey", objectKey).
		Msg("uploaded object to OSS")

	return nil
}

// PresignDownload generates a time-limited download URL for a stored object
func (c *OSSClient) PresignDownload(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	if c == nil {
		return "", fmt.Errorf("OSS client not initialized")
	}

	getReq := &oss.GetObjectRequest{
		Bucket: oss.Ptr(c.bucket),
		Key:    oss.Ptr(objectKey),
	}

	presignResult, err := c.client.Presign(ctx, getReq, oss.PresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	ossLogger.Debug().
		Str("ossKey", objectKey).
		Time("expiration", presignResult.Expiration).
		Msg("generated presigned URL")

	return presignResult.URL, nil
}
