package oss

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/tos_scan_server/config"
)

// Client 归档分析的 AI 原始报告
type Client struct {
	bucket  *oss.Bucket
	baseURL string
}

// Enabled 未配置 endpoint 或 bucket 时不启用归档
func Enabled(cfg *config.OSSConfig) bool {
	return cfg != nil && cfg.Endpoint != "" && cfg.BucketName != ""
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("create oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", cfg.BucketName, err)
	}

	baseURL := "https://" + cfg.CDNDomain
	if cfg.CDNDomain == "" {
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		baseURL = fmt.Sprintf("https://%s.%s", cfg.BucketName, host)
	}
	return &Client{bucket: bucket, baseURL: baseURL}, nil
}

// ReportKey 报告对象路径 reports/<user>/<analysis>.json
func ReportKey(userID, analysisID int64) string {
	return fmt.Sprintf("reports/%d/%d.json", userID, analysisID)
}

// URL 对象的公开访问地址
func (c *Client) URL(key string) string {
	return c.baseURL + "/" + key
}

// UploadReport 返回归档地址
func (c *Client) UploadReport(userID, analysisID int64, data []byte) (string, error) {
	key := ReportKey(userID, analysisID)
	if err := c.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType("application/json")); err != nil {
		return "", fmt.Errorf("upload report %s: %w", key, err)
	}
	return c.URL(key), nil
}

// DeleteReport 对象不存在时 OSS 也返回成功
func (c *Client) DeleteReport(userID, analysisID int64) error {
	key := ReportKey(userID, analysisID)
	if err := c.bucket.DeleteObject(key); err != nil {
		return fmt.Errorf("delete report %s: %w", key, err)
	}
	return nil
}
