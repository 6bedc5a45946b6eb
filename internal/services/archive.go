package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"matelock-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const archiveURLExpiry = 5 * time.Minute

// ArchiveConfig locates the bucket that keeps agreed configurations
type ArchiveConfig struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectStore is the subset of the S3 API the archive needs
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveRecord is the JSON object written for each completed setup
type ArchiveRecord struct {
	PairID          string                           `json:"pair_id"`
	MemberA         string                           `json:"member_a"`
	MemberB         string                           `json:"member_b"`
	CompletedAt     time.Time                        `json:"completed_at"`
	ApprovedAnswers map[string]models.ApprovedConfig `json:"approved_answers"`
}

// ArchiveResponse carries a short-lived download link
type ArchiveResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// ArchiveService stores every agreed configuration in S3
type ArchiveService struct {
	objects   ObjectStore
	presigner *s3.PresignClient
	bucket    string
}

// NewArchiveService creates an archive backed by S3 or an S3-compatible endpoint
func NewArchiveService(ctx context.Context, cfg ArchiveConfig) (*ArchiveService, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ArchiveService{
		objects:   client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// NewArchiveServiceWithStore creates an archive that writes through objects
// and cannot sign download links.
func NewArchiveServiceWithStore(objects ObjectStore, bucket string) *ArchiveService {
	return &ArchiveService{objects: objects, bucket: bucket}
}

// ArchiveKey is the object key of one completed setup
func ArchiveKey(pairID string, completedAt time.Time) string {
	return fmt.Sprintf("%s/setup-%d.json", pairID, completedAt.Unix())
}

func latestKey(pairID string) string {
	return fmt.Sprintf("%s/setup-latest.json", pairID)
}

// Archive writes the agreed configuration of a completed setup
func (s *ArchiveService) Archive(ctx context.Context, pair *models.Pair, doc *models.SetupDocument) error {
	if doc.CompletedAt == nil {
		return fmt.Errorf("setup of pair %s is not complete", pair.ID)
	}
	record := ArchiveRecord{
		PairID:          pair.ID,
		MemberA:         pair.MemberA,
		MemberB:         pair.MemberB,
		CompletedAt:     *doc.CompletedAt,
		ApprovedAnswers: doc.ApprovedAnswers,
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	for _, key := range []string{ArchiveKey(pair.ID, record.CompletedAt), latestKey(pair.ID)} {
		_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("failed to put %s: %w", key, err)
		}
	}
	return nil
}

// LatestURL signs a download link for the last agreed configuration of pairID
func (s *ArchiveService) LatestURL(ctx context.Context, pairID string) (*ArchiveResponse, error) {
	if s.presigner == nil {
		return nil, fmt.Errorf("archive downloads are not configured")
	}
	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(latestKey(pairID)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = archiveURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return &ArchiveResponse{
		URL:       request.URL,
		ExpiresIn: int(archiveURLExpiry.Seconds()),
	}, nil
}
