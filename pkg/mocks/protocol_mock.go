package mocks

import (
	"context"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockMessagingGateway is a mock implementation of protocol.MessagingGateway.
type MockMessagingGateway struct {
	mock.Mock
}

func (m *MockMessagingGateway) Send(ctx context.Context, credentials models.ChannelCredentials, message protocol.OutboundMessage) (*protocol.DeliveryResult, error) {
	args := m.Called(ctx, credentials, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.DeliveryResult), args.Error(1)
}

// MockDirectoryService is a mock implementation of protocol.DirectoryService.
type MockDirectoryService struct {
	mock.Mock
}

func (m *MockDirectoryService) GetContact(ctx context.Context, organizationID, contactID string) (*models.Contact, error) {
	args := m.Called(ctx, organizationID, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *MockDirectoryService) AddTag(ctx context.Context, contactID, tagID string) error {
	args := m.Called(ctx, contactID, tagID)

	return args.Error(0)
}

func (m *MockDirectoryService) RemoveTag(ctx context.Context, contactID, tagID string) error {
	args := m.Called(ctx, contactID, tagID)

	return args.Error(0)
}

func (m *MockDirectoryService) UpdateField(ctx context.Context, contactID, field string, value any) error {
	args := m.Called(ctx, contactID, field, value)

	return args.Error(0)
}

func (m *MockDirectoryService) AddToList(ctx context.Context, contactID, listID string) error {
	args := m.Called(ctx, contactID, listID)

	return args.Error(0)
}

func (m *MockDirectoryService) RemoveFromList(ctx context.Context, contactID, listID string) error {
	args := m.Called(ctx, contactID, listID)

	return args.Error(0)
}

func (m *MockDirectoryService) Notify(ctx context.Context, organizationID, message string) error {
	args := m.Called(ctx, organizationID, message)

	return args.Error(0)
}

func (m *MockDirectoryService) ContactsByTag(ctx context.Context, organizationID, tagID string, limit int) ([]*models.Contact, error) {
	args := m.Called(ctx, organizationID, tagID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Contact), args.Error(1)
}

// MockCompletionProvider is a mock implementation of protocol.CompletionProvider.
type MockCompletionProvider struct {
	mock.Mock
}

func (m *MockCompletionProvider) Complete(ctx context.Context, req protocol.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

// MockCredentialsResolver is a mock implementation of protocol.CredentialsResolver.
type MockCredentialsResolver struct {
	mock.Mock
}

func (m *MockCredentialsResolver) CredentialsForOrganization(ctx context.Context, organizationID string) (models.ChannelCredentials, error) {
	args := m.Called(ctx, organizationID)

	return args.Get(0).(models.ChannelCredentials), args.Error(1)
}
