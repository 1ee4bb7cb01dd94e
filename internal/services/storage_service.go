// internal/services/storage_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/vendora/backend/internal/config"
)

// StorageService resolves the opaque file references stored on products and
// tokens into something a browser can fetch. S3 keys become short-lived
// presigned URLs; anything else passes through unchanged so development can
// serve files from disk or a plain HTTP server.
type StorageService struct {
	cfg      config.AWSConfig
	s3Client *s3.S3
	logger   *logrus.Entry
}

// presignTTL bounds how long a resolved URL stays usable. Shorter than any
// token expiry so the URL itself is never the long-lived credential.
const presignTTL = 15 * time.Minute

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	svc := &StorageService{
		cfg:    cfg,
		logger: logrus.WithField("component", "storage"),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		sess, err := session.NewSession(&aws.Config{
			Region:      aws.String(cfg.Region),
			Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		svc.s3Client = s3.New(sess)
	} else {
		svc.logger.Warn("AWS credentials not configured, S3 references will not resolve")
	}

	return svc, nil
}

// ResolveFile turns a stored file reference into a fetchable URL.
//
//	s3://key/in/bucket  -> presigned S3 URL (or CloudFront when configured)
//	anything else       -> returned as-is
func (s *StorageService) ResolveFile(fileRef string) (string, error) {
	key, ok := strings.CutPrefix(fileRef, "s3://")
	if !ok {
		return fileRef, nil
	}

	if s.cfg.CloudFrontURL != "" {
		return strings.TrimSuffix(s.cfg.CloudFrontURL, "/") + "/" + key, nil
	}

	if s.s3Client == nil {
		return "", fmt.Errorf("S3 reference %q but storage is not configured", fileRef)
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(presignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign S3 URL: %w", err)
	}
	return url, nil
}

// HeadFile fetches the size of an object so product records can be seeded
// without a manual size entry. Non-S3 references report zero.
func (s *StorageService) HeadFile(fileRef string) (int64, error) {
	key, ok := strings.CutPrefix(fileRef, "s3://")
	if !ok || s.s3Client == nil {
		return 0, nil
	}

	out, err := s.s3Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head S3 object: %w", err)
	}
	return aws.Int64Value(out.ContentLength), nil
}
