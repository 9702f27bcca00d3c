package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/history"
	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/contextstore"
	"loanflow-server/internal/infrastructure/verificationstore"
)

type recordingHistory struct {
	mu   sync.Mutex
	apps []*history.Application
}

func (r *recordingHistory) Record(app *history.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps = append(r.apps, app)
	return nil
}

func (r *recordingHistory) recorded() []*history.Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*history.Application(nil), r.apps...)
}

// newLoanDeskServer serves the three upstream APIs from one handler.
func newLoanDeskServer(t *testing.T, creditScore int, preApprovedLimit float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/crm/"):
			_ = json.NewEncoder(w).Encode(apiclients.CRMCustomer{
				ID:      "CUST001",
				Name:    "Rajesh Kumar",
				Phone:   "+919876543210",
				Address: "MG Road, Bangalore",
				Age:     32,
				City:    "Bangalore",
				Salary:  85000,
			})
		case strings.HasPrefix(r.URL.Path, "/credit-score/"):
			_ = json.NewEncoder(w).Encode(apiclients.CreditReport{
				Success:     true,
				CustomerID:  "CUST001",
				CreditScore: creditScore,
			})
		case strings.HasPrefix(r.URL.Path, "/offers/"):
			_ = json.NewEncoder(w).Encode(apiclients.OfferSheet{
				Success:          true,
				CustomerID:       "CUST001",
				PreApprovedLimit: preApprovedLimit,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestMaster(t *testing.T, apiURL string) (*MasterAgent, *recordingHistory) {
	t.Helper()

	cfg := &config.Config{
		ContextStoragePath:      t.TempDir(),
		VerificationStorePath:   filepath.Join(t.TempDir(), "verifications.json"),
		SanctionLetterPath:      t.TempDir(),
		CRMAPIURL:               apiURL,
		CreditBureauAPIURL:      apiURL,
		OfferMartAPIURL:         apiURL,
		CRMTimeout:              2 * time.Second,
		CreditBureauTimeout:     2 * time.Second,
		OfferMartTimeout:        2 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 3,
		BreakerRecoveryTimeout:  50 * time.Millisecond,
		RetryMaxAttempts:        2,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           10 * time.Millisecond,
	}
	log := zerolog.Nop()

	contexts, err := contextstore.NewStore(cfg, log)
	require.NoError(t, err)
	tracker, err := verificationstore.NewStore(cfg, log)
	require.NoError(t, err)
	gen, err := sanction.NewGenerator(cfg, log)
	require.NoError(t, err)

	errs := errorhandler.New()
	apis := apiclients.NewClients(cfg)
	recorder := &recordingHistory{}

	letterAgent := NewSanctionLetterAgent(errs, gen)
	workflow := sanction.NewWorkflow(letterAgent, gen, log)
	factory := NewWorkerFactory(errs, apis, tracker, recorder, gen)
	sessions := NewSessionManager(contexts, factory)
	manager := NewConversationManager()

	return NewMasterAgent(errs, sessions, manager, apis, workflow), recorder
}

func TestInitiateConversationGreetsAndPersists(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	resp, err := master.InitiateConversation("CUST001", "Rajesh Kumar", "website", "")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, conversation.MessageText, resp.MessageType)
	assert.Equal(t, conversation.AgentMaster, resp.AgentType)
	assert.Equal(t, conversation.StageInitiation, resp.Stage)
	assert.Contains(t, resp.Message, "Rajesh Kumar")

	conv, ok := master.SessionContext(resp.SessionID)
	require.True(t, ok)
	name, ok := conv.GetCollectedValue("name")
	require.True(t, ok)
	assert.Equal(t, "Rajesh Kumar", name)
	assert.Len(t, conv.Messages, 1)
}

func TestProcessMessageUnknownSession(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	_, err := master.ProcessMessage(context.Background(), "sess_missing", "hello there")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProcessMessageBareGreeting(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "Rajesh Kumar", "", "")
	require.NoError(t, err)

	resp, err := master.ProcessMessage(context.Background(), start.SessionID, "Hello!")
	require.NoError(t, err)

	assert.Equal(t, conversation.StageInitiation, resp.Stage)
	assert.Equal(t, conversation.AgentMaster, resp.AgentType)
	assert.Contains(t, resp.Message, "Rajesh Kumar")
}

func TestFullApplicationInstantApprovalEndToEnd(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, recorder := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "", "", "")
	require.NoError(t, err)

	resp, err := master.ProcessMessage(context.Background(), start.SessionID,
		"I need a loan of Rs. 300,000. My name is Rajesh Kumar, I am 32 years old and I work as an engineer in Bangalore.")
	require.NoError(t, err)

	assert.Equal(t, conversation.MessageDownloadLink, resp.MessageType)
	assert.Equal(t, conversation.AgentSanctionLetter, resp.AgentType)
	assert.Equal(t, conversation.StageCompletion, resp.Stage)
	assert.Contains(t, resp.Message, "instantly approved")

	assert.Equal(t, string(IntentFullApplication), resp.Metadata["intent"])
	assert.Equal(t, "process_complete_application", resp.Metadata["action"])

	link, ok := resp.Metadata["download_link"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(link, "/api/documents/download/sanction-letter/"))
	filename, ok := resp.Metadata["filename"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(filename, "sanction_letter_SL_"))

	conv, ok := master.SessionContext(start.SessionID)
	require.True(t, ok)
	assert.Equal(t, conversation.AgentMaster, conv.CurrentAgent)

	done, ok := conv.GetCollectedValue("sanction_letter_completed")
	require.True(t, ok)
	assert.Equal(t, true, done)
	stored, ok := conv.GetCollectedValue("final_download_link")
	require.True(t, ok)
	assert.Equal(t, link, stored)

	apps := recorder.recorded()
	require.Len(t, apps, 1)
	assert.Equal(t, history.StatusApproved, apps[0].Status)
	assert.InDelta(t, 300000, apps[0].RequestedAmount, 0.01)
}

func TestFullApplicationLowCreditRejection(t *testing.T) {
	srv := newLoanDeskServer(t, 590, 500000)
	master, recorder := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "", "", "")
	require.NoError(t, err)

	resp, err := master.ProcessMessage(context.Background(), start.SessionID,
		"I need a loan of Rs. 300,000. My name is Rajesh Kumar, I am 32 years old and I work as an engineer in Bangalore.")
	require.NoError(t, err)

	assert.Equal(t, conversation.MessageText, resp.MessageType)
	assert.Equal(t, conversation.AgentUnderwriting, resp.AgentType)
	assert.Contains(t, resp.Message, "credit score of 590")
	assert.Equal(t, "rejected", resp.Metadata["decision"])
	assert.Equal(t, "rejection_low_credit", resp.Metadata["decision_type"])

	apps := recorder.recorded()
	require.Len(t, apps, 1)
	assert.Equal(t, history.StatusRejected, apps[0].Status)
}

func TestRecoveryActionEscalatesAfterRepeatedFailures(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	assert.Equal(t, "retry_task", master.recoveryAction(1))
	assert.Equal(t, "restart_agent", master.recoveryAction(2))
	assert.Equal(t, "prepare_escalation", master.recoveryAction(3))
	assert.Equal(t, "prepare_escalation", master.recoveryAction(7))
}

func TestWorkerFallbackEscalatesPastThreshold(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)
	cause := errors.New("verification worker unavailable")

	resp := master.workerFallback(conversation.AgentVerification, cause)
	assert.NotEqual(t, escalationMessage, resp.Message)
	assert.Equal(t, cause.Error(), resp.Metadata["error"])

	for i := 0; i < escalationFailureCount; i++ {
		master.recordWorkerFailure(conversation.AgentVerification)
	}

	resp = master.workerFallback(conversation.AgentVerification, cause)
	assert.Equal(t, escalationMessage, resp.Message)
	assert.Equal(t, conversation.AgentMaster, resp.AgentType)
}

func TestHealthReportDegradesWithFailures(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	report := master.HealthReport("")
	assert.Equal(t, "healthy", report["status"])
	assert.Equal(t, 100, report["health_score"])

	master.recordWorkerFailure(conversation.AgentSales)
	master.recordWorkerFailure(conversation.AgentSales)
	master.recordWorkerFailure(conversation.AgentUnderwriting)

	report = master.HealthReport("")
	assert.Equal(t, "degraded", report["status"])
	assert.Equal(t, 40, report["health_score"])
	perAgent := report["recent_failures"].(map[string]int)
	assert.Equal(t, 2, perAgent[string(conversation.AgentSales)])

	master.clearWorkerFailures(conversation.AgentSales)
	master.clearWorkerFailures(conversation.AgentUnderwriting)
	report = master.HealthReport("")
	assert.Equal(t, "healthy", report["status"])
}

func TestStartVerificationForwardsCollectedDetails(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "Rajesh Kumar", "", "")
	require.NoError(t, err)
	conv, ok := master.SessionContext(start.SessionID)
	require.True(t, ok)
	conv.AddCollectedData("age", 32)

	resp := master.startVerification(context.Background(), conv)
	require.Equal(t, conversation.AgentVerification, resp.AgentType)
	assert.Contains(t, resp.Message, "successfully verified")
	assert.Equal(t, "verified", resp.Metadata["verification_status"])

	verified, ok := conv.GetSharedData(conversation.AgentMaster, "kyc_verified")
	require.True(t, ok)
	assert.Equal(t, true, verified)
}

func TestRequestDocumentsUsesVerificationFindings(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "Sunita Sharma", "", "")
	require.NoError(t, err)
	conv, ok := master.SessionContext(start.SessionID)
	require.True(t, ok)

	resp := master.startVerification(context.Background(), conv)
	assert.Equal(t, "requires_documents", resp.Metadata["verification_status"])

	docs := master.requestDocuments(conv)
	assert.Equal(t, []string{"aadhaar", "pan", "passport"}, docs.Metadata["required_documents"])
	assert.NotContains(t, docs.Message, "salary slip")

	// Contexts reloaded from disk hand the shared list back as []any.
	conv.ShareData(conversation.AgentVerification, conversation.AgentMaster, "required_documents", []any{"utility_bill", "bank_statement"})
	docs = master.requestDocuments(conv)
	assert.Equal(t, []string{"utility_bill", "bank_statement"}, docs.Metadata["required_documents"])
}

func TestResetSessionSoftKeepsCollectedData(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "Rajesh Kumar", "", "")
	require.NoError(t, err)
	conv, ok := master.SessionContext(start.SessionID)
	require.True(t, ok)
	conv.AddPendingTask(conversation.NewTask(conversation.AgentSales, conversation.TaskSales, nil))
	conv.AddError("downstream timeout", conversation.SeverityLow, nil)

	reset, err := master.sessions.ResetSession(start.SessionID, false)
	require.NoError(t, err)

	assert.Equal(t, start.SessionID, reset.SessionID)
	assert.Equal(t, conversation.StageInitiation, reset.Stage)
	assert.Equal(t, conversation.AgentMaster, reset.CurrentAgent)
	assert.Empty(t, reset.PendingTasks)
	assert.Empty(t, reset.Errors)
	name, ok := reset.GetCollectedValue("name")
	require.True(t, ok)
	assert.Equal(t, "Rajesh Kumar", name)
}

func TestResetSessionHardIssuesFreshSession(t *testing.T) {
	srv := newLoanDeskServer(t, 785, 500000)
	master, _ := newTestMaster(t, srv.URL)

	start, err := master.InitiateConversation("CUST001", "Rajesh Kumar", "", "")
	require.NoError(t, err)

	fresh, err := master.sessions.ResetSession(start.SessionID, true)
	require.NoError(t, err)

	assert.NotEqual(t, start.SessionID, fresh.SessionID)
	assert.Equal(t, "CUST001", fresh.CustomerID)
	assert.Equal(t, conversation.StageInitiation, fresh.Stage)
	assert.Empty(t, fresh.CollectedData)
	assert.Empty(t, fresh.Messages)

	old, ok := master.sessions.Context(start.SessionID)
	require.True(t, ok)
	assert.Equal(t, conversation.StageCompletion, old.Stage)
}
