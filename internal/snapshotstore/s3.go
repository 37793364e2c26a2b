package snapshotstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3-compatible backend. Endpoint and path style
// cover MinIO and other non-AWS deployments.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	PathStyle bool   `json:"path_style"`
}

func init() {
	BackendRegistry["s3"] = func(raw json.RawMessage) (Store, error) {
		var cfg S3Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return newS3Store(cfg)
	}
}

type s3Store struct {
	cfg    S3Config
	client *s3.Client
}

func newS3Store(sc S3Config) (*s3Store, error) {
	if sc.Bucket == "" {
		return nil, errors.New("snapshotstore: s3 backend requires a bucket")
	}
	var opts []func(*config.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, config.WithRegion(sc.Region))
	}
	if sc.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	var s3Opts []func(*s3.Options)
	if sc.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		})
	}
	if sc.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return &s3Store{cfg: sc, client: s3.NewFromConfig(cfg, s3Opts...)}, nil
}

func (s *s3Store) key(name string) string {
	if s.cfg.Prefix == "" {
		return name + snapExt
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + name + snapExt
}

func (s *s3Store) Read(name string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return errReader{err}, nil
	}
	return resp.Body, nil
}

// Write buffers locally and uploads on Close; S3 objects are immutable,
// so the PutObject is the atomicity point.
func (s *s3Store) Write(name string) (io.WriteCloser, error) {
	return &s3Writer{s: s, key: s.key(name)}, nil
}

type s3Writer struct {
	s   *s3Store
	key string
	buf bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *s3Writer) Close() error {
	_, err := w.s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(w.s.cfg.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}

func (s *s3Store) Remove(name string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

func (s *s3Store) List() ([]string, error) {
	var names []string
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(s.cfg.Prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, snapExt) {
				continue
			}
			key = strings.TrimSuffix(key, snapExt)
			if s.cfg.Prefix != "" {
				key = strings.TrimPrefix(key, strings.TrimSuffix(s.cfg.Prefix, "/")+"/")
			}
			names = append(names, key)
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			return names, nil
		}
		token = resp.NextContinuationToken
	}
}

func (s *s3Store) Close() error { return nil }
