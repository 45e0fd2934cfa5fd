package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// S3Backend speaks the S3 REST API directly with hand-rolled SigV4 request
// signing. No third-party AWS SDK appears anywhere in the example corpus
// this module was built from, so unlike every other backing store here this
// one is built on net/http rather than an ecosystem client (see DESIGN.md).
type S3Backend struct {
	bucket     string
	region     string
	endpoint   string // e.g. "https://s3.us-east-1.amazonaws.com", or a custom endpoint for S3-compatible stores
	accessKey  string
	secretKey  string
	httpClient *http.Client
}

func NewS3Backend(bucket, region, endpoint, accessKey, secretKey string) (*S3Backend, error) {
	if bucket == "" || region == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("s3 backend requires bucket, region, access key, and secret key")
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}
	return &S3Backend{
		bucket:     bucket,
		region:     region,
		endpoint:   strings.TrimRight(endpoint, "/"),
		accessKey:  accessKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (b *S3Backend) objectURL(relPath string) string {
	return fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucket, strings.TrimPrefix(relPath, "/"))
}

func (b *S3Backend) PutFile(relPath string, tmp *os.File, size int64) error {
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking temp blob file: %w", err)
	}

	req, err := http.NewRequest(http.MethodPut, b.objectURL(relPath), tmp)
	if err != nil {
		return fmt.Errorf("building s3 put request: %w", err)
	}
	req.ContentLength = size

	if err := b.sign(req, tmp); err != nil {
		return fmt.Errorf("signing s3 put request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading blob to s3: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("s3 put failed with status %d", resp.StatusCode)
	}
	return nil
}

func (b *S3Backend) Open(relPath string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, b.objectURL(relPath), nil)
	if err != nil {
		return nil, fmt.Errorf("building s3 get request: %w", err)
	}
	if err := b.sign(req, nil); err != nil {
		return nil, fmt.Errorf("signing s3 get request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching blob from s3: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, os.ErrNotExist
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("s3 get failed with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *S3Backend) Delete(relPath string) error {
	req, err := http.NewRequest(http.MethodDelete, b.objectURL(relPath), nil)
	if err != nil {
		return fmt.Errorf("building s3 delete request: %w", err)
	}
	if err := b.sign(req, nil); err != nil {
		return fmt.Errorf("signing s3 delete request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting blob from s3: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("s3 delete failed with status %d", resp.StatusCode)
	}
	return nil
}

func (b *S3Backend) URL(relPath string) string {
	return b.objectURL(relPath)
}

// sign applies AWS Signature Version 4 to req. body is read fully to
// compute its payload hash if provided (nil means an empty-body request).
func (b *S3Backend) sign(req *http.Request, body *os.File) error {
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	payloadHash := emptyPayloadHash
	if body != nil {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		h := sha256.New()
		if _, err := io.Copy(h, body); err != nil {
			return err
		}
		payloadHash = hex.EncodeToString(h.Sum(nil))
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)

	signedHeaders := "host;x-amz-content-sha256;x-amz-date"
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-content-sha256:%s\nx-amz-date:%s\n",
		req.URL.Host, payloadHash, amzDate)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL.Path),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, b.region)
	hashedCanonicalRequest := sha256Hex(canonicalRequest)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hashedCanonicalRequest,
	}, "\n")

	signingKey := deriveSigningKey(b.secretKey, dateStamp, b.region, "s3")
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authHeader := fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		b.accessKey, scope, signedHeaders, signature,
	)
	req.Header.Set("Authorization", authHeader)

	return nil
}

const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func deriveSigningKey(secretKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}
