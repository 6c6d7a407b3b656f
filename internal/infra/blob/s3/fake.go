package s3

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FakeBucket is the bucket name used by NewFake.
const FakeBucket = "configforge-test"

// Fake is an in-process transport speaking just enough of the S3 REST API
// (HEAD, GET, PUT, DELETE and ListObjectsV2 with path-style addressing) for
// the store to run without network access.
type Fake struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	PageSize int
	Requests int
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// NewFake returns a Store wired to a fresh Fake.
func NewFake() (*Store, *Fake) {
	fake := &Fake{objects: make(map[string]fakeObject), PageSize: 1000}
	client := s3.New(s3.Options{
		Region:                     DefaultRegion,
		Credentials:                credentials.NewStaticCredentialsProvider("AKIDTEST", "SECRET", ""),
		HTTPClient:                 &http.Client{Transport: fake},
		BaseEndpoint:               aws.String("https://s3.fake.local"),
		UsePathStyle:               true,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return newStore(client, FakeBucket), fake
}

// Keys returns the stored keys in order.
func (f *Fake) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RoundTrip implements http.RoundTripper.
func (f *Fake) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests++

	path := strings.TrimPrefix(req.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != FakeBucket {
		return errorResponse(http.StatusNotFound, "NoSuchBucket"), nil
	}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.list(req), nil
	case req.Method == http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return &http.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: http.NoBody}, nil
		}
		return objectResponse(obj, nil), nil
	case req.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return errorResponse(http.StatusNotFound, "NoSuchKey"), nil
		}
		return objectResponse(obj, obj.body), nil
	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		obj := fakeObject{
			body:        body,
			contentType: req.Header.Get("Content-Type"),
			metadata:    map[string]string{},
			modified:    time.Now().UTC().Truncate(time.Second),
		}
		for name, values := range req.Header {
			if k, ok := strings.CutPrefix(strings.ToLower(name), "x-amz-meta-"); ok && len(values) > 0 {
				obj.metadata[k] = values[0]
			}
		}
		f.objects[key] = obj
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{"Etag": {etag(body)}}, Body: http.NoBody}, nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return &http.Response{StatusCode: http.StatusNoContent, Header: http.Header{}, Body: http.NoBody}, nil
	}
	return errorResponse(http.StatusNotImplemented, "NotImplemented"), nil
}

type listContents struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

type listResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	Contents              []listContents `xml:"Contents"`
}

func (f *Fake) list(req *http.Request) *http.Response {
	q := req.URL.Query()
	prefix := q.Get("prefix")
	start := 0
	if tok := q.Get("continuation-token"); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	end := min(start+f.PageSize, len(keys))
	result := listResult{}
	for _, k := range keys[min(start, end):end] {
		obj := f.objects[k]
		result.Contents = append(result.Contents, listContents{
			Key:          k,
			Size:         int64(len(obj.body)),
			ETag:         etag(obj.body),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	if end < len(keys) {
		result.IsTruncated = true
		result.NextContinuationToken = strconv.Itoa(end)
	}
	data, _ := xml.Marshal(result)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/xml"}},
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
}

func objectResponse(obj fakeObject, body []byte) *http.Response {
	header := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Etag":           {etag(obj.body)},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	if obj.contentType != "" {
		header.Set("Content-Type", obj.contentType)
	}
	for k, v := range obj.metadata {
		header.Set("X-Amz-Meta-"+k, v)
	}
	resp := &http.Response{StatusCode: http.StatusOK, Header: header, Body: http.NoBody, ContentLength: int64(len(obj.body))}
	if body != nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	return resp
}

func errorResponse(status int, code string) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, http.StatusText(status))
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/xml"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func etag(body []byte) string {
	return fmt.Sprintf(`"%x"`, len(body))
}

var _ http.RoundTripper = (*Fake)(nil)
