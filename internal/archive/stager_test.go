package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/robert-malhotra/sarprep/internal/asf"
	"github.com/robert-malhotra/sarprep/internal/download"
)

const testScene = "S1A_IW_GRDH_1SDV_20230313T175210_20230313T175235_047629_05B868_4E5C"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	calls []download.Request
	err   error
}

func (f *fakeFetcher) Get(ctx context.Context, req download.Request) (int64, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return 0, f.err
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return 0, err
	}
	return 4, os.WriteFile(req.Dest, []byte("data"), 0o644)
}

type fakeLookup struct {
	feature *asf.Feature
	err     error
	scenes  []string
}

func (f *fakeLookup) GetGranule(ctx context.Context, scene string) (*asf.Feature, error) {
	f.scenes = append(f.scenes, scene)
	return f.feature, f.err
}

type mockS3Downloader struct {
	content []byte
	input   *s3.GetObjectInput
	cfg     aws.Config
	err     error
}

func (m *mockS3Downloader) Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	m.input = input
	if m.err != nil {
		return 0, m.err
	}
	n, err := w.WriteAt(m.content, 0)
	return int64(n), err
}

func TestStageLocal(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, testScene+".zip")
	os.WriteFile(local, []byte("zip"), 0o644)

	s := NewStager(filepath.Join(dir, "staging"), nil, nil, nil).WithLogger(quietLogger())
	got, err := s.Stage(context.Background(), local)
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if got != local {
		t.Errorf("Stage() = %q, want %q", got, local)
	}

	if _, err := s.Stage(context.Background(), filepath.Join(dir, "missing.zip")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStageURL(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{}
	s := NewStager(dir, fetcher, nil, nil).WithLogger(quietLogger())

	url := "https://datapool.asf.alaska.edu/GRD_HD/SA/" + testScene + ".zip"
	got, err := s.Stage(context.Background(), url)
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	want := filepath.Join(dir, testScene+".zip")
	if got != want {
		t.Errorf("Stage() = %q, want %q", got, want)
	}

	// Second call reuses the staged file.
	if _, err := s.Stage(context.Background(), url); err != nil {
		t.Fatalf("second Stage() error: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("expected 1 download, got %d", len(fetcher.calls))
	}

	failing := NewStager(t.TempDir(), &fakeFetcher{err: download.ErrNotFound}, nil, nil).WithLogger(quietLogger())
	if _, err := failing.Stage(context.Background(), url); !errors.Is(err, download.ErrNotFound) {
		t.Errorf("expected wrapped download error, got %v", err)
	}
}

func TestStageScene(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{}
	lookup := &fakeLookup{feature: &asf.Feature{Properties: asf.Properties{
		URL:    "https://datapool.asf.alaska.edu/GRD_HD/SA/" + testScene + ".zip",
		MD5Sum: "abc123",
	}}}
	s := NewStager(dir, fetcher, nil, lookup).WithLogger(quietLogger())

	got, err := s.Stage(context.Background(), testScene)
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if got != filepath.Join(dir, testScene+".zip") {
		t.Errorf("Stage() = %q", got)
	}
	if len(lookup.scenes) != 1 || lookup.scenes[0] != testScene {
		t.Errorf("lookup calls = %v", lookup.scenes)
	}
	if fetcher.calls[0].MD5 != "abc123" {
		t.Errorf("checksum not forwarded: %+v", fetcher.calls[0])
	}

	noURL := NewStager(t.TempDir(), fetcher, nil, &fakeLookup{feature: &asf.Feature{}}).WithLogger(quietLogger())
	if _, err := noURL.Stage(context.Background(), testScene); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for record without URL, got %v", err)
	}

	noLookup := NewStager(t.TempDir(), fetcher, nil, nil).WithLogger(quietLogger())
	if _, err := noLookup.Stage(context.Background(), testScene); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound without lookup, got %v", err)
	}
}

func TestStageS3(t *testing.T) {
	dir := t.TempDir()
	mock := &mockS3Downloader{content: []byte("s3data")}
	src := NewS3Source("eu-central-1", S3Credentials{AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}).WithLogger(quietLogger())
	src.newDownloader = func(cfg aws.Config) s3Downloader {
		mock.cfg = cfg
		return mock
	}

	s := NewStager(dir, nil, src, nil).WithLogger(quietLogger())
	got, err := s.Stage(context.Background(), "s3://sentinel-bucket/GRD/2023/"+testScene+".zip")
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "s3data" {
		t.Errorf("unexpected s3 file contents: %q", data)
	}
	if aws.ToString(mock.input.Bucket) != "sentinel-bucket" {
		t.Errorf("unexpected bucket: %s", aws.ToString(mock.input.Bucket))
	}
	if aws.ToString(mock.input.Key) != "GRD/2023/"+testScene+".zip" {
		t.Errorf("unexpected key: %s", aws.ToString(mock.input.Key))
	}
	if mock.cfg.Region != "eu-central-1" {
		t.Errorf("unexpected region %s", mock.cfg.Region)
	}
	if _, err := os.Stat(got + download.PartSuffix); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}

	mock.err = errors.New("access denied")
	if _, err := s.Stage(context.Background(), "s3://sentinel-bucket/other.zip"); err == nil {
		t.Error("expected error from failing downloader")
	}
	if _, err := os.Stat(filepath.Join(dir, "other.zip.part")); !os.IsNotExist(err) {
		t.Error("partial file left behind after failure")
	}

	unconfigured := NewStager(dir, nil, nil, nil).WithLogger(quietLogger())
	if _, err := unconfigured.Stage(context.Background(), "s3://b/k.zip"); err == nil {
		t.Error("expected error without S3 source")
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{uri: "s3://bucket/a/b.zip", bucket: "bucket", key: "a/b.zip"},
		{uri: "s3://bucket", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "s3://bucket/dir/", wantErr: true},
		{uri: "https://bucket/key", wantErr: true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3URI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseS3URI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseS3URI(%q) = %q, %q", tt.uri, bucket, key)
		}
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.zip", "a.zip", "notes.txt"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
	}
	os.MkdirAll(filepath.Join(dir, "c.SAFE"), 0o755)
	os.MkdirAll(filepath.Join(dir, "other"), 0o755)

	got, err := Expand([]string{dir, "s3://bucket/key.zip", testScene})
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.zip"),
		filepath.Join(dir, "b.zip"),
		filepath.Join(dir, "c.SAFE"),
		"s3://bucket/key.zip",
		testScene,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}

	safe := filepath.Join(dir, "c.SAFE")
	got, _ = Expand([]string{safe})
	if !reflect.DeepEqual(got, []string{safe}) {
		t.Errorf("SAFE directory must pass through, got %v", got)
	}
}

func TestIsSceneName(t *testing.T) {
	if !isSceneName(testScene) {
		t.Error("bare scene should be recognised")
	}
	for _, s := range []string{testScene + ".zip", "dir/" + testScene, "hello"} {
		if isSceneName(s) {
			t.Errorf("isSceneName(%q) = true", s)
		}
	}
}
