package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

const publicReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"AWS": ["*"]},
      "Action": ["s3:GetObject"],
      "Resource": [%s]
    }
  ]
}`

type minioUploader struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useTLS   bool
	proxy    string

	policyMu sync.Mutex
	public   map[string]struct{} // 已公开的前缀
}

func newMinioUploader(opts UploaderOptions) (*minioUploader, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("存储 Endpoints 不能为空")
	}
	if opts.BucketName == "" {
		return nil, errors.New("存储 BucketName 不能为空")
	}

	endpoint := opts.Endpoints[0]
	if len(opts.Endpoints) > 1 {
		logx.Infof("存储配置了多个 endpoint，使用第一个: %s", endpoint)
	}

	mo := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.AccessSecret, ""),
		Secure: opts.UseTLS,
		Region: opts.Region,
	}
	if opts.UseTLS && opts.CAFile != "" {
		transport, err := minio.DefaultTransport(true)
		if err != nil {
			return nil, errors.Wrap(err, "创建存储传输层失败")
		}
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, errors.Wrapf(err, "读取 CA 文件失败: %s", opts.CAFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA 文件无有效证书: %s", opts.CAFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		mo.Transport = transport
	}

	client, err := minio.New(endpoint, mo)
	if err != nil {
		return nil, errors.Wrap(err, "创建存储客户端失败")
	}

	u := &minioUploader{
		client:   client,
		bucket:   opts.BucketName,
		endpoint: endpoint,
		useTLS:   opts.UseTLS,
		proxy:    strings.TrimRight(opts.EndpointProxy, "/"),
		public:   make(map[string]struct{}),
	}
	if err := u.ensureBucket(context.Background(), opts.Region); err != nil {
		return nil, err
	}

	logx.Infof("对象存储初始化成功, provider=%s, endpoint=%s, bucket=%s", opts.Provider, endpoint, opts.BucketName)
	return u, nil
}

func (u *minioUploader) ensureBucket(ctx context.Context, region string) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return errors.Wrapf(err, "检查存储桶失败: %s", u.bucket)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return errors.Wrapf(err, "创建存储桶失败: %s", u.bucket)
	}
	logx.Infof("已创建存储桶: %s", u.bucket)
	return nil
}

func (u *minioUploader) Create(ctx context.Context, objectID, contentType string) (string, error) {
	if objectID == "" {
		return "", ErrEmptyObjectID
	}
	_, err := u.client.PutObject(ctx, u.bucket, objectID, bytes.NewReader(nil), 0, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"state": "placeholder"},
	})
	if err != nil {
		return "", errors.Wrapf(err, "创建占位对象失败: %s", objectID)
	}
	return objectID, nil
}

func (u *minioUploader) Put(ctx context.Context, objectID string, data []byte, contentType string) error {
	if objectID == "" {
		return ErrEmptyObjectID
	}
	_, err := u.client.PutObject(ctx, u.bucket, objectID, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrapf(err, "写入对象失败: %s", objectID)
	}
	return nil
}

// SetPublic 通过桶策略公开对象所在前缀
func (u *minioUploader) SetPublic(ctx context.Context, objectID string) error {
	if objectID == "" {
		return ErrEmptyObjectID
	}
	prefix := path.Dir(objectID)

	u.policyMu.Lock()
	defer u.policyMu.Unlock()
	if _, ok := u.public[prefix]; ok {
		return nil
	}

	next := make([]string, 0, len(u.public)+1)
	for p := range u.public {
		next = append(next, p)
	}
	next = append(next, prefix)

	if err := u.client.SetBucketPolicy(ctx, u.bucket, u.policyFor(next)); err != nil {
		return errors.Wrapf(err, "设置公开读取失败: %s", objectID)
	}
	u.public[prefix] = struct{}{}
	return nil
}

func (u *minioUploader) policyFor(prefixes []string) string {
	resources := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		resource := fmt.Sprintf("arn:aws:s3:::%s/*", u.bucket)
		if p != "." && p != "" {
			resource = fmt.Sprintf("arn:aws:s3:::%s/%s/*", u.bucket, p)
		}
		resources = append(resources, `"`+resource+`"`)
	}
	return fmt.Sprintf(publicReadPolicy, strings.Join(resources, ", "))
}

func (u *minioUploader) Get(ctx context.Context, objectID string) ([]byte, error) {
	obj, err := u.client.GetObject(ctx, u.bucket, objectID, minio.GetObjectOptions{})
	if err != nil {
		return nil, u.wrapNotFound(err, objectID)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, u.wrapNotFound(err, objectID)
	}
	return data, nil
}

func (u *minioUploader) Delete(ctx context.Context, objectID string) error {
	if objectID == "" {
		return ErrEmptyObjectID
	}
	if err := u.client.RemoveObject(ctx, u.bucket, objectID, minio.RemoveObjectOptions{}); err != nil {
		return u.wrapNotFound(err, objectID)
	}
	return nil
}

func (u *minioUploader) URL(objectID string) string {
	if objectID == "" {
		return ""
	}
	base := u.proxy
	if base == "" {
		scheme := "http"
		if u.useTLS {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, u.endpoint)
	}
	return fmt.Sprintf("%s/%s/%s", base, u.bucket, objectID)
}

func (u *minioUploader) wrapNotFound(err error, objectID string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrapf(ErrObjectNotFound, "%s", objectID)
	}
	return errors.Wrapf(err, "访问对象失败: %s", objectID)
}
