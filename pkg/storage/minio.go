// Package storage 封装对象存储访问，上传的文档原件统一存放在 MinIO。
package storage

import (
	"context"
	"io"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是进程级的 MinIO 客户端，InitMinIO 成功后方可使用。
var MinioClient *minio.Client

// InitMinIO 建立 MinIO 连接并确保文档存储桶可用。
func InitMinIO(cfg config.MinIOConfig) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	MinioClient = client
	log.Info("MinIO 客户端初始化成功")

	ensureBucket(context.Background(), cfg.BucketName)
}

// ensureBucket 保证存储桶存在，不存在时创建。
func ensureBucket(ctx context.Context, bucketName string) {
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", bucketName)
		return
	}
	if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		log.Fatal("创建 MinIO 存储桶失败", err)
	}
	log.Infof("存储桶 '%s' 创建完成", bucketName)
}

// PutObject 将对象写入指定存储桶。
func PutObject(ctx context.Context, bucketName, objectKey string, reader io.Reader, size int64, contentType string) error {
	_, err := MinioClient.PutObject(ctx, bucketName, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// GetObject 读取指定对象，调用方负责关闭返回的读取器。
func GetObject(ctx context.Context, bucketName, objectKey string) (io.ReadCloser, error) {
	return MinioClient.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
}

// RemoveObject 删除指定对象。
func RemoveObject(ctx context.Context, bucketName, objectKey string) error {
	return MinioClient.RemoveObject(ctx, bucketName, objectKey, minio.RemoveObjectOptions{})
}

// GetPresignedURL 为对象签发限时下载链接。
func GetPresignedURL(bucketName, objectKey string, expiry time.Duration) (string, error) {
	u, err := MinioClient.PresignedGetObject(context.Background(), bucketName, objectKey, expiry, nil)
	if err != nil {
		log.Errorf("生成预签名 URL 失败: %v", err)
		return "", err
	}
	return u.String(), nil
}
