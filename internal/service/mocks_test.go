package service

import (
	"context"

	"handoff/pkg/aiagent"
	"handoff/pkg/notify"

	"github.com/stretchr/testify/mock"
)

type mockResponder struct {
	mock.Mock
}

func (m *mockResponder) GenerateReply(ctx context.Context, history []aiagent.TranscriptMessage, customerMessage string) (*aiagent.Reply, error) {
	args := m.Called(ctx, history, customerMessage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiagent.Reply), args.Error(1)
}

func (m *mockResponder) SummarizeForHandback(ctx context.Context, history []aiagent.TranscriptMessage) (*aiagent.HandbackAssessment, error) {
	args := m.Called(ctx, history)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiagent.HandbackAssessment), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOperators(ctx context.Context, event notify.OperatorEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockNotifier) NotifyCustomer(ctx context.Context, msg notify.CustomerMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockCleaner struct {
	mock.Mock
}

func (m *mockCleaner) CleanupOldRecords(retentionDays int) error {
	args := m.Called(retentionDays)
	return args.Error(0)
}
