package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// fakeCompletionClient plays back scripted chunks or fails on demand.
type fakeCompletionClient struct {
	chunks  []string
	openErr error
	recvErr error // returned after the scripted chunks, instead of EOF

	calls        int
	lastMessages []models.ChatMessage
}

func (f *fakeCompletionClient) StreamCompletion(_ context.Context, messages []models.ChatMessage) (CompletionStream, error) {
	f.calls++
	f.lastMessages = messages
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeCompletionStream{chunks: f.chunks, err: f.recvErr}, nil
}

type fakeCompletionStream struct {
	chunks []string
	next   int
	err    error
}

func (s *fakeCompletionStream) Recv() (string, error) {
	if s.next < len(s.chunks) {
		chunk := s.chunks[s.next]
		s.next++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeCompletionStream) Close() error { return nil }

// memQuotaRepository is an in-memory quota store honoring period rollover.
type memQuotaRepository struct {
	records map[string]*models.QuotaRecord
}

func newMemQuotaRepository() *memQuotaRepository {
	return &memQuotaRepository{records: make(map[string]*models.QuotaRecord)}
}

func (r *memQuotaRepository) Read(identity models.Identity, periodKey string) (*models.QuotaRecord, error) {
	if record, ok := r.records[identity.ScopeKey()]; ok && record.PeriodKey == periodKey {
		copied := *record
		return &copied, nil
	}
	return &models.QuotaRecord{ScopeKey: identity.ScopeKey(), PeriodKey: periodKey}, nil
}

func (r *memQuotaRepository) Increment(identity models.Identity, periodKey string, tokens int) (*models.QuotaRecord, error) {
	record, _ := r.Read(identity, periodKey)
	record.UsedTokens += tokens
	record.UpdatedAt = time.Now()
	stored := *record
	r.records[identity.ScopeKey()] = &stored
	return record, nil
}

// MockConversationService is a testify mock of the conversation store.
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) List(identity models.Identity) ([]models.Conversation, error) {
	args := m.Called(identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockConversationService) Start(identity models.Identity, firstMessage string) (*models.Conversation, error) {
	args := m.Called(identity, firstMessage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) Append(identity models.Identity, conversationID, role, content string) error {
	args := m.Called(identity, conversationID, role, content)
	return args.Error(0)
}

func (m *MockConversationService) LoadMessages(identity models.Identity, conversationID string) ([]models.Message, error) {
	args := m.Called(identity, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockConversationService) Delete(identity models.Identity, conversationID string) error {
	args := m.Called(identity, conversationID)
	return args.Error(0)
}

func (m *MockConversationService) Invalidate(accountID string) {
	m.Called(accountID)
}

type chatFixture struct {
	service     ChatService
	completion  *fakeCompletionClient
	quotaRepo   *memQuotaRepository
	quota       QuotaService
	convService *MockConversationService
}

func newChatFixture(t *testing.T, interval time.Duration) *chatFixture {
	t.Helper()

	completion := &fakeCompletionClient{}
	quotaRepo := newMemQuotaRepository()
	quota := NewQuotaService(quotaRepo, 1000, 10000)
	convService := new(MockConversationService)
	sessions := NewSessionRegistry(interval, 30*time.Minute)

	return &chatFixture{
		service:     NewChatService(completion, quota, convService, sessions, 0.9, 20),
		completion:  completion,
		quotaRepo:   quotaRepo,
		quota:       quota,
		convService: convService,
	}
}

func today() string {
	return time.Now().Format(periodKeyLayout)
}

func TestSubmit_WhitespaceOnlyIsNoOp(t *testing.T) {
	f := newChatFixture(t, 0)
	identity := models.Identity{DeviceID: "dev-1"}

	result, err := f.service.Submit(context.Background(), identity, "", "   \n\t ", nil)
	require.NoError(t, err)
	assert.Equal(t, StateComposing, result.State)
	assert.Zero(t, f.completion.calls, "backend must not be contacted for empty input")
}

func TestSubmit_AnonymousBlockedBeforeAnyNetworkCall(t *testing.T) {
	f := newChatFixture(t, 0)
	identity := models.Identity{DeviceID: "dev-1"}

	// ANONYMOUS_TOKEN_LIMIT = 1000, estimated cost 1200.
	text := strings.Repeat("x", 4800)
	result, err := f.service.Submit(context.Background(), identity, "", text, nil)

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, StateBlocked, result.State)
	assert.True(t, result.SignInPrompt, "first block of the episode shows the sign-in prompt")
	assert.Zero(t, f.completion.calls, "backend must not be contacted when blocked")

	// Subsequent blocked attempts within the same exhaustion episode do not
	// repeat the prompt.
	result, err = f.service.Submit(context.Background(), identity, "", text, nil)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.False(t, result.SignInPrompt)
}

func TestSubmit_RateLimitedSecondSend(t *testing.T) {
	f := newChatFixture(t, 3*time.Second)
	f.completion.chunks = []string{"ok"}
	identity := models.Identity{DeviceID: "dev-1"}

	_, err := f.service.Submit(context.Background(), identity, "", "first message", nil)
	require.NoError(t, err)

	// Well under the 3000 ms interval.
	result, err := f.service.Submit(context.Background(), identity, "", "second message", nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, StateBlocked, result.State)
	assert.NotEmpty(t, result.Notice)
	assert.Equal(t, 1, f.completion.calls, "the second send must not reach the backend")
}

func TestSubmit_StreamsReplyAndChargesQuota(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"Olá", ", tudo bem?"}
	identity := models.Identity{DeviceID: "dev-1"}

	var received []string
	result, err := f.service.Submit(context.Background(), identity, "", "oi", func(chunk string) error {
		received = append(received, chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StateIdle, result.State)
	assert.Equal(t, "Olá, tudo bem?", result.Reply)
	assert.Equal(t, []string{"Olá", ", tudo bem?"}, received, "chunks arrive in order")

	expected := EstimateTokens("oi") + EstimateTokens("Olá, tudo bem?")
	record, err := f.quotaRepo.Read(identity, today())
	require.NoError(t, err)
	assert.Equal(t, expected, record.UsedTokens)
	assert.Equal(t, expected, result.Usage.UsedTokens)
}

func TestSubmit_AuthenticatedExchangeIsPersisted(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"resposta"}
	identity := models.Identity{AccountID: "acct-1"}

	conversation := &models.Conversation{ID: "conv-1", AccountID: "acct-1"}
	f.convService.On("Start", identity, "primeira pergunta").Return(conversation, nil)
	f.convService.On("Append", identity, "conv-1", "assistant", "resposta").Return(nil)

	result, err := f.service.Submit(context.Background(), identity, "", "primeira pergunta", nil)
	require.NoError(t, err)

	assert.Equal(t, "conv-1", result.ConversationID)
	f.convService.AssertExpectations(t)
}

func TestSubmit_ExistingConversationAppendsBothTurns(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"resposta"}
	identity := models.Identity{AccountID: "acct-1"}

	f.convService.On("Append", identity, "conv-7", "user", "pergunta").Return(nil)
	f.convService.On("Append", identity, "conv-7", "assistant", "resposta").Return(nil)

	result, err := f.service.Submit(context.Background(), identity, "conv-7", "pergunta", nil)
	require.NoError(t, err)

	assert.Equal(t, "conv-7", result.ConversationID)
	f.convService.AssertExpectations(t)
	f.convService.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

func TestSubmit_AnonymousExchangeIsNotPersisted(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"resposta"}
	identity := models.Identity{DeviceID: "dev-1"}

	_, err := f.service.Submit(context.Background(), identity, "", "pergunta", nil)
	require.NoError(t, err)

	f.convService.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	f.convService.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_TransportFailureRollsBackAndChargesNothing(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"partial "}
	f.completion.recvErr = errors.New("connection reset")
	identity := models.Identity{AccountID: "acct-1"}

	result, err := f.service.Submit(context.Background(), identity, "", "pergunta", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, StateComposing, result.State, "retryable after transport failure")

	// No quota charged for a failed exchange.
	record, readErr := f.quotaRepo.Read(identity, today())
	require.NoError(t, readErr)
	assert.Zero(t, record.UsedTokens)

	// No partial assistant message persisted.
	f.convService.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	f.convService.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_BackendRejectionRollsBackUserMessage(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.openErr = errors.New("bad gateway")
	identity := models.Identity{DeviceID: "dev-1"}

	result, err := f.service.Submit(context.Background(), identity, "", "pergunta", nil)
	require.Error(t, err)
	assert.Equal(t, StateComposing, result.State)

	// The next attempt starts from a clean transcript.
	f.completion.openErr = nil
	f.completion.chunks = []string{"ok"}
	_, err = f.service.Submit(context.Background(), identity, "", "pergunta", nil)
	require.NoError(t, err)
	require.Len(t, f.completion.lastMessages, 1, "failed attempt must not linger in the history")
	assert.Equal(t, "pergunta", f.completion.lastMessages[0].Content)
}

func TestSubmit_AbandonedStreamChargesNothing(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"first", "second"}
	identity := models.Identity{DeviceID: "dev-1"}

	emitErr := errors.New("client disconnected")
	_, err := f.service.Submit(context.Background(), identity, "", "pergunta", func(string) error {
		return emitErr
	})
	require.Error(t, err)

	record, readErr := f.quotaRepo.Read(identity, today())
	require.NoError(t, readErr)
	assert.Zero(t, record.UsedTokens)
}

func TestSubmit_NinetyPercentWarningShownOnce(t *testing.T) {
	f := newChatFixture(t, 0)
	identity := models.Identity{AccountID: "acct-1"}

	// 9200 of 10000 used; the next exchange costs 150 tokens
	// (400-rune question = 100, 200-rune reply = 50).
	_, err := f.quotaRepo.Increment(identity, today(), 9200)
	require.NoError(t, err)
	f.completion.chunks = []string{strings.Repeat("r", 200)}

	question := strings.Repeat("q", 400)
	f.convService.On("Start", identity, question).Return(&models.Conversation{ID: "conv-1"}, nil)
	f.convService.On("Append", identity, "conv-1", "assistant", mock.Anything).Return(nil)

	result, err := f.service.Submit(context.Background(), identity, "", question, nil)
	require.NoError(t, err)

	assert.Equal(t, 9350, result.Usage.UsedTokens)
	assert.NotEmpty(t, result.Warning, "crossing 90%% must surface the warning")

	// The warning is one-shot per session.
	f.convService.On("Append", identity, "conv-1", "user", mock.Anything).Return(nil)
	result, err = f.service.Submit(context.Background(), identity, "conv-1", "mais uma", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
}

func TestSubmit_PersistenceFailureIsNonFatal(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"resposta"}
	identity := models.Identity{AccountID: "acct-1"}

	f.convService.On("Start", identity, "pergunta").Return(nil, errors.New("storage down"))

	result, err := f.service.Submit(context.Background(), identity, "", "pergunta", nil)
	require.NoError(t, err, "a failed history write must not fail the exchange")

	assert.Equal(t, "resposta", result.Reply)
	assert.True(t, result.PersistenceFailed)

	// The exchange still counts against quota.
	record, readErr := f.quotaRepo.Read(identity, today())
	require.NoError(t, readErr)
	assert.Greater(t, record.UsedTokens, 0)
}

func TestSubmit_HistoryWindowBoundsBackendPayload(t *testing.T) {
	f := newChatFixture(t, 0)
	f.completion.chunks = []string{"ok"}
	identity := models.Identity{DeviceID: "dev-1"}

	for i := 0; i < 15; i++ {
		_, err := f.service.Submit(context.Background(), identity, "", "mensagem", nil)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(f.completion.lastMessages), 20)
}
