package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
)

// S3Connector archives raw blocks as one JSON object per block under
// <prefix>/blocks/<20-digit number>.json; the zero-padded key keeps listing
// order equal to block order.
type S3Connector struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3Connector(cfg *config.S3Config) (*S3Connector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Connector{
		client: s3.NewFromConfig(awsCfg),
		cfg:    cfg,
	}, nil
}

func (c *S3Connector) blockKey(blockNumber uint64) string {
	prefix := strings.TrimSuffix(c.cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return fmt.Sprintf("%sblocks/%020d.json", prefix, blockNumber)
}

func (c *S3Connector) SaveRawBlock(ctx context.Context, block *common.RawBlock) (string, error) {
	data, err := json.Marshal(block)
	if err != nil {
		return "", fmt.Errorf("failed to serialize raw block %d: %w", block.Number, err)
	}
	key := c.blockKey(block.Number)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload raw block %d: %w", block.Number, err)
	}
	return fmt.Sprintf("s3://%s/%s", c.cfg.Bucket, key), nil
}

func (c *S3Connector) LoadRawBlock(ctx context.Context, blockNumber uint64) (*common.RawBlock, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.blockKey(blockNumber)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, common.ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to fetch raw block %d: %w", blockNumber, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw block %d: %w", blockNumber, err)
	}
	block := common.RawBlock{}
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to parse raw block %d: %w", blockNumber, err)
	}
	return &block, nil
}

func (c *S3Connector) RawBlockExists(ctx context.Context, blockNumber uint64) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.blockKey(blockNumber)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check raw block %d: %w", blockNumber, err)
	}
	return true, nil
}

func (c *S3Connector) GetAvailableBlocks(ctx context.Context, start, end uint64) ([]uint64, error) {
	prefix := strings.TrimSuffix(c.cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	prefix += "blocks/"

	numbers := []uint64{}
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:     aws.String(c.cfg.Bucket),
		Prefix:     aws.String(prefix),
		StartAfter: aws.String(fmt.Sprintf("%s%020d", prefix, start)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list raw blocks: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
			var n uint64
			if _, err := fmt.Sscanf(name, "%d", &n); err != nil {
				continue
			}
			if n < start {
				continue
			}
			if n > end {
				sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
				return numbers, nil
			}
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}

func (c *S3Connector) MaxAvailableBlock(ctx context.Context) (uint64, error) {
	numbers, err := c.GetAvailableBlocks(ctx, 0, ^uint64(0))
	if err != nil || len(numbers) == 0 {
		return 0, err
	}
	return numbers[len(numbers)-1], nil
}
