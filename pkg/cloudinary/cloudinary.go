// Package cloudinary stores test case fixtures as raw Cloudinary assets.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrEmptyLocation is returned when a fixture has no stored URL.
var ErrEmptyLocation = errors.New("fixture location is empty")

const maxFixtureBytes = 8 << 20

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Timeout   time.Duration
}

// Service uploads and fetches fixture files.
type Service struct {
	client *cloudinary.Cloudinary
	http   *http.Client
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Service{
		client: cld,
		http:   &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		folder: cfg.Folder,
		logger: logger.With().Str("component", "fixture_storage").Logger(),
	}, nil
}

// Upload stores a fixture under the given relative path and returns its secure URL.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	publicID := BuildPublicID(s.folder, name)
	overwrite := true

	result, err := s.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: "raw",
		Overwrite:    &overwrite,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload fixture: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload fixture: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("fixture uploaded")

	return result.SecureURL, nil
}

// Remove deletes the fixture stored under name. Missing assets are not an error.
func (s *Service) Remove(ctx context.Context, name string) error {
	publicID := BuildPublicID(s.folder, name)
	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: "raw",
	})
	if err != nil {
		return fmt.Errorf("failed to remove fixture: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to remove fixture: %s", result.Error.Message)
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("failed to remove fixture: %s", result.Result)
	}

	s.logger.Info().Str("public_id", publicID).Msg("fixture removed")
	return nil
}

// Download fetches a previously uploaded fixture.
func (s *Service) Download(ctx context.Context, location string) ([]byte, error) {
	if strings.TrimSpace(location) == "" {
		return nil, ErrEmptyLocation
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build fixture request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download fixture: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download fixture: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFixtureBytes))
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return body, nil
}

// BuildPublicID maps a fixture path such as "3/12/case_1_in.txt" onto a
// Cloudinary public id. Raw assets keep their extension.
func BuildPublicID(folder, name string) string {
	segments := strings.Split(strings.Trim(path.Clean("/"+name), "/"), "/")
	cleaned := make([]string, 0, len(segments)+1)
	prefix := strings.Trim(folder, "/")
	if prefix != "" {
		cleaned = append(cleaned, prefix)
	}
	base := len(cleaned)
	for _, segment := range segments {
		segment = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
				return r
			}
			return '-'
		}, segment)
		segment = strings.Trim(segment, "-.")
		if segment != "" {
			cleaned = append(cleaned, segment)
		}
	}
	if len(cleaned) == base {
		cleaned = append(cleaned, fmt.Sprintf("fixture-%d.txt", time.Now().UnixNano()))
	}
	return strings.Join(cleaned, "/")
}
