// Package debricked implements the provider adapter for the Debricked CI
// dependency scanner.
package debricked

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/pkg/domain/mapping"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

// ProviderCode is the stable identifier used as the mapping namespace.
const ProviderCode = "debricked"

const (
	uploadPath = "/api/1.0/open/uploads/dependencies/files"
	finishPath = "/api/1.0/open/finishes/dependencies/files/uploads"
	statusPath = "/api/1.0/open/ci/upload/status"
)

// Config holds the Debricked client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is the Debricked provider adapter.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	mappingRepo mapping.Repository
	logger      *logger.Logger
}

// New creates a Debricked adapter.
func New(cfg Config, mappingRepo mapping.Repository, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("debricked base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("debricked token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: timeout},
		mappingRepo: mappingRepo,
		logger:      log.With("provider", ProviderCode),
	}, nil
}

// Code returns the provider identifier.
func (c *Client) Code() string {
	return ProviderCode
}

// uploadResponse is the provider's per-file upload response.
type uploadResponse struct {
	CIUploadID   int `json:"ciUploadId"`
	UploadFileID int `json:"uploadProgramsFileId"`
}

// UploadAndCreateScan uploads all files of a scan and starts the remote
// scan. The call is idempotent: a ci_upload mapping left behind by an
// earlier partial attempt is reused instead of creating a second remote
// upload.
func (c *Client) UploadAndCreateScan(ctx context.Context, sc *scan.Scan, files []*scanfile.File, opts provider.UploadOptions) (*provider.UploadResult, error) {
	if len(files) == 0 {
		return nil, provider.NewPermanentError(ProviderCode, "upload", errors.New("no files to upload"))
	}

	var (
		remoteUploadID string
		remoteFileIDs  = make([]string, 0, len(files))
		lastRaw        json.RawMessage
	)

	for _, f := range files {
		resp, raw, err := c.uploadFile(ctx, f, remoteUploadID, opts)
		if err != nil {
			return nil, err
		}
		lastRaw = raw

		remoteFileID := strconv.Itoa(resp.UploadFileID)
		remoteFileIDs = append(remoteFileIDs, remoteFileID)
		if resp.CIUploadID != 0 {
			remoteUploadID = strconv.Itoa(resp.CIUploadID)
		}

		if err := c.storeMapping(ctx, mapping.TypeFile, remoteFileID, mapping.LinkedFile, f.ID, raw); err != nil {
			return nil, err
		}
	}

	// A retried call against files the provider already knows can come back
	// without an upload id; fall back to the mapping stored by the earlier
	// attempt.
	if remoteUploadID == "" {
		existing, err := c.mappingRepo.FindByLinkedEntity(ctx, ProviderCode, mapping.TypeCIUpload, mapping.LinkedScan, sc.ID)
		if err != nil {
			if shared.IsNotFound(err) {
				return nil, provider.NewPermanentError(ProviderCode, "upload",
					errors.New("provider returned no upload id and no prior mapping exists"))
			}
			return nil, fmt.Errorf("find ci_upload mapping: %w", err)
		}
		remoteUploadID = existing.ExternalID
		c.logger.Info("reusing remote upload from prior attempt",
			"scan_id", sc.ID.String(),
			"remote_upload_id", remoteUploadID,
		)
	}

	if err := c.storeMapping(ctx, mapping.TypeCIUpload, remoteUploadID, mapping.LinkedScan, sc.ID, lastRaw); err != nil {
		return nil, err
	}

	if err := c.finishUpload(ctx, remoteUploadID, opts); err != nil {
		return nil, err
	}

	c.logger.Info("remote scan created",
		"scan_id", sc.ID.String(),
		"remote_upload_id", remoteUploadID,
		"files", len(remoteFileIDs),
	)

	return &provider.UploadResult{
		RemoteUploadID: remoteUploadID,
		RemoteFileIDs:  remoteFileIDs,
		Raw:            lastRaw,
	}, nil
}

// uploadFile posts one dependency file as multipart form data.
func (c *Client) uploadFile(ctx context.Context, f *scanfile.File, ciUploadID string, opts provider.UploadOptions) (*uploadResponse, json.RawMessage, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, nil, provider.NewPermanentError(ProviderCode, "open file", err)
	}
	defer func() { _ = src.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"repositoryName": opts.RepositoryName,
		"commitName":     opts.CommitSHA,
		"branchName":     opts.Branch,
	}
	if ciUploadID != "" {
		fields["ciUploadId"] = ciUploadID
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, nil, provider.NewPermanentError(ProviderCode, "build form", err)
		}
	}

	part, err := w.CreateFormFile("fileData", filepath.Base(f.Filename))
	if err != nil {
		return nil, nil, provider.NewPermanentError(ProviderCode, "build form", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, nil, provider.NewError(ProviderCode, "read file", err)
	}
	if err := w.Close(); err != nil {
		return nil, nil, provider.NewPermanentError(ProviderCode, "build form", err)
	}

	body, err := c.do(ctx, http.MethodPost, uploadPath, &buf, w.FormDataContentType())
	if err != nil {
		return nil, nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, provider.NewPermanentError(ProviderCode, "decode upload response", err)
	}

	return &resp, json.RawMessage(body), nil
}

// finishUpload tells the provider the upload is complete and scanning may
// start.
func (c *Client) finishUpload(ctx context.Context, remoteUploadID string, opts provider.UploadOptions) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("ciUploadId", remoteUploadID); err != nil {
		return provider.NewPermanentError(ProviderCode, "build form", err)
	}
	if opts.RepositoryName != "" {
		if err := w.WriteField("repositoryName", opts.RepositoryName); err != nil {
			return provider.NewPermanentError(ProviderCode, "build form", err)
		}
	}
	if err := w.Close(); err != nil {
		return provider.NewPermanentError(ProviderCode, "build form", err)
	}

	_, err := c.do(ctx, http.MethodPost, finishPath, &buf, w.FormDataContentType())
	return err
}

// PollScanStatus asks the provider for the state of a remote upload.
func (c *Client) PollScanStatus(ctx context.Context, remoteUploadID string) (*provider.StatusResult, error) {
	endpoint := statusPath + "?" + url.Values{"ciUploadId": {remoteUploadID}}.Encode()

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}

	var raw rawStatus
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, provider.NewPermanentError(ProviderCode, "decode status response", err)
	}

	return &provider.StatusResult{
		Progress:             raw.Progress,
		ScanCompleted:        raw.Progress == 100,
		VulnerabilitiesFound: raw.VulnerabilitiesFound,
		DetailsURL:           raw.DetailsURL,
		Raw:                  json.RawMessage(body),
	}, nil
}

// storeMapping persists a provider mapping, tolerating duplicates.
func (c *Client) storeMapping(ctx context.Context, typ mapping.Type, externalID string, linkedType mapping.LinkedType, linkedID shared.ID, raw json.RawMessage) error {
	m, err := mapping.New(ProviderCode, typ, externalID, linkedType, linkedID, raw)
	if err != nil {
		return err
	}
	if err := c.mappingRepo.Create(ctx, m); err != nil {
		return fmt.Errorf("store %s mapping: %w", typ, err)
	}
	return nil
}

// do runs one HTTP call against the provider, classifying failures.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, provider.NewPermanentError(ProviderCode, "create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewError(ProviderCode, method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Limit response body to 1MB to protect against oversized responses.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, provider.NewError(ProviderCode, "read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, provider.NewError(ProviderCode, method+" "+path,
			fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody)))
	default:
		return nil, provider.NewPermanentError(ProviderCode, method+" "+path,
			fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody)))
	}
}
