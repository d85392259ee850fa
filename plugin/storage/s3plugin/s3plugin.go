// Package s3plugin is a StoragePlugin backend over an S3-compatible
// object store (§4.1), an alternative to fsplugin for deployments that
// want the catalogue's plugins off local disk. It is grounded on the
// teacher's persist.S3Store: the same minio-go client construction and
// object-key layout (bucket/[prefix/]collection/hashedName), stripped of
// the teacher's per-tenant versioning and backup machinery, neither of
// which this module's plugin contract needs.
package s3plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

const requestTimeout = 10 * time.Second

// Config is the connection configuration for a Plugin, mirroring the
// teacher's persist.S3Config.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	Bucket          string
	KeyPrefix       string
}

// Plugin is a StoragePlugin backed by an S3-compatible bucket.
type Plugin struct {
	name   string
	isTest bool

	client *minio.Client
	bucket string
	prefix string
}

// New connects to the S3-compatible endpoint described by cfg and
// confirms the target bucket exists.
func New(name string, isTest bool, cfg Config) (*Plugin, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3plugin: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3plugin: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("s3plugin: create bucket: %w", err)
		}
	}

	return &Plugin{name: name, isTest: isTest, client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

func (p *Plugin) Name() string { return p.name }
func (p *Plugin) IsTest() bool { return p.isTest }

func (p *Plugin) objectKey(collection, hashedName string) string {
	if p.prefix == "" {
		return path.Join(collection, hashedName)
	}
	return path.Join(p.prefix, collection, hashedName)
}

func (p *Plugin) collectionPrefix(collection string) string {
	if p.prefix == "" {
		return collection + "/"
	}
	return path.Join(p.prefix, collection) + "/"
}

// CreateCollection is a no-op: S3 has no directory objects, so a
// collection exists implicitly once its first secret is written.
func (p *Plugin) CreateCollection(name string) error { return nil }

func (p *Plugin) RemoveCollection(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	objectsCh := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{Prefix: p.collectionPrefix(name), Recursive: true})
	for obj := range objectsCh {
		if obj.Err != nil {
			return fmt.Errorf("s3plugin: list objects: %w", obj.Err)
		}
		if err := p.client.RemoveObject(ctx, p.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("s3plugin: remove object %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (p *Plugin) SetSecret(collection, hashedName string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err := p.client.PutObject(ctx, p.bucket, p.objectKey(collection, hashedName),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("s3plugin: put object: %w", err)
	}
	return nil
}

func (p *Plugin) GetSecret(collection, hashedName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	object, err := p.client.GetObject(ctx, p.bucket, p.objectKey(collection, hashedName), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3plugin: get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("s3plugin: secret not found")
		}
		return nil, fmt.Errorf("s3plugin: read object: %w", err)
	}
	return data, nil
}

func (p *Plugin) RemoveSecret(collection, hashedName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := p.client.RemoveObject(ctx, p.bucket, p.objectKey(collection, hashedName), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3plugin: remove object: %w", err)
	}
	return nil
}

func (p *Plugin) ReencryptSecrets(target plugin.ReencryptTarget, oldKey, newKey []byte, enc plugin.EncryptionPlugin) error {
	var keys []string
	if target.CollectionName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		objectsCh := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{Prefix: p.collectionPrefix(target.CollectionName), Recursive: true})
		for obj := range objectsCh {
			if obj.Err != nil {
				return fmt.Errorf("s3plugin: list objects: %w", obj.Err)
			}
			keys = append(keys, obj.Key)
		}
	} else {
		for _, hashed := range target.HashedStandaloneNames {
			keys = append(keys, p.objectKey("standalone", hashed))
		}
	}

	for _, key := range keys {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		object, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			cancel()
			return fmt.Errorf("s3plugin: get object %s: %w", key, err)
		}
		ciphertext, err := io.ReadAll(object)
		object.Close()
		cancel()
		if err != nil {
			return fmt.Errorf("s3plugin: read object %s: %w", key, err)
		}

		plaintext, err := enc.Decrypt(ciphertext, oldKey)
		if err != nil {
			return fmt.Errorf("s3plugin: decrypt %s: %w", key, err)
		}
		rewrapped, err := enc.Encrypt(plaintext, newKey)
		if err != nil {
			return fmt.Errorf("s3plugin: encrypt %s: %w", key, err)
		}

		putCtx, putCancel := context.WithTimeout(context.Background(), requestTimeout)
		_, err = p.client.PutObject(putCtx, p.bucket, key, bytes.NewReader(rewrapped), int64(len(rewrapped)), minio.PutObjectOptions{})
		putCancel()
		if err != nil {
			return fmt.Errorf("s3plugin: put object %s: %w", key, err)
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
	}
	return false
}

var _ plugin.StoragePlugin = (*Plugin)(nil)
