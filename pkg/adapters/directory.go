package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/protocol"
)

// HTTPDirectoryService talks to the contact directory service's REST API.
// It also doubles as the credentials resolver, since the directory owns the
// organizations' channel configuration.
type HTTPDirectoryService struct {
	baseURL string
	apiKey  string
	client  protocol.HTTPDoer
	logger  *slog.Logger
}

// NewHTTPDirectoryService creates a directory client for the given base URL.
func NewHTTPDirectoryService(baseURL, apiKey string, logger *slog.Logger) *HTTPDirectoryService {
	return &HTTPDirectoryService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("module", "directory"),
	}
}

func (d *HTTPDirectoryService) GetContact(ctx context.Context, organizationID, contactID string) (*models.Contact, error) {
	path := fmt.Sprintf("/v1/organizations/%s/contacts/%s",
		url.PathEscape(organizationID), url.PathEscape(contactID))

	var contact models.Contact
	if err := d.call(ctx, http.MethodGet, path, nil, &contact); err != nil {
		return nil, err
	}

	return &contact, nil
}

func (d *HTTPDirectoryService) AddTag(ctx context.Context, contactID, tagID string) error {
	path := fmt.Sprintf("/v1/contacts/%s/tags/%s", url.PathEscape(contactID), url.PathEscape(tagID))

	return d.call(ctx, http.MethodPut, path, nil, nil)
}

func (d *HTTPDirectoryService) RemoveTag(ctx context.Context, contactID, tagID string) error {
	path := fmt.Sprintf("/v1/contacts/%s/tags/%s", url.PathEscape(contactID), url.PathEscape(tagID))

	return d.call(ctx, http.MethodDelete, path, nil, nil)
}

func (d *HTTPDirectoryService) UpdateField(ctx context.Context, contactID, field string, value any) error {
	path := fmt.Sprintf("/v1/contacts/%s/fields", url.PathEscape(contactID))

	return d.call(ctx, http.MethodPatch, path, map[string]any{field: value}, nil)
}

func (d *HTTPDirectoryService) AddToList(ctx context.Context, contactID, listID string) error {
	path := fmt.Sprintf("/v1/lists/%s/members/%s", url.PathEscape(listID), url.PathEscape(contactID))

	return d.call(ctx, http.MethodPut, path, nil, nil)
}

func (d *HTTPDirectoryService) RemoveFromList(ctx context.Context, contactID, listID string) error {
	path := fmt.Sprintf("/v1/lists/%s/members/%s", url.PathEscape(listID), url.PathEscape(contactID))

	return d.call(ctx, http.MethodDelete, path, nil, nil)
}

func (d *HTTPDirectoryService) Notify(ctx context.Context, organizationID, message string) error {
	path := fmt.Sprintf("/v1/organizations/%s/notifications", url.PathEscape(organizationID))

	return d.call(ctx, http.MethodPost, path, map[string]any{"message": message}, nil)
}

func (d *HTTPDirectoryService) ContactsByTag(ctx context.Context, organizationID, tagID string, limit int) ([]*models.Contact, error) {
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if tagID != "" {
		query.Set("tag_id", tagID)
	}

	path := fmt.Sprintf("/v1/organizations/%s/contacts?%s", url.PathEscape(organizationID), query.Encode())

	var result struct {
		Contacts []*models.Contact `json:"contacts"`
	}

	if err := d.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	return result.Contacts, nil
}

// CredentialsForOrganization fetches the organization's messaging channel
// credentials, satisfying protocol.CredentialsResolver.
func (d *HTTPDirectoryService) CredentialsForOrganization(ctx context.Context, organizationID string) (models.ChannelCredentials, error) {
	path := fmt.Sprintf("/v1/organizations/%s/channel", url.PathEscape(organizationID))

	var credentials models.ChannelCredentials
	if err := d.call(ctx, http.MethodGet, path, nil, &credentials); err != nil {
		return models.ChannelCredentials{}, err
	}

	return credentials, nil
}

func (d *HTTPDirectoryService) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build directory request: %w", err)
	}

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	if d.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	response, err := d.client.Do(request)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read directory response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("directory returned status %d for %s %s", response.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}

	return nil
}
