package delivery_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/dripleopard-backend/internal/delivery"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

type stubSender struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (s *stubSender) Send(recipient, subject, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("smtp refused")
	}
	s.sent = append(s.sent, recipient)
	return nil
}

type stubReporter struct {
	mu      sync.Mutex
	reports map[string]string
	err     error
}

func (r *stubReporter) ReportProgress(ref model.StageRef, address, progress string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.reports == nil {
		r.reports = map[string]string{}
	}
	r.reports[address] = progress
	return nil
}

type stubRecorder struct {
	mu      sync.Mutex
	records []*model.DeliveryRecord
	err     error
}

func (r *stubRecorder) Record(rec *model.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func deliveryJob(address string) model.DeliveryJob {
	return model.DeliveryJob{
		MessageID: "msg-" + address,
		Ref:       model.StageRef{GroupKey: "2026-09-01", CampaignID: "launch", Stage: 1},
		Address:   address,
		Info:      model.ContactInfo{"name": "Alice"},
		Template:  model.Template{Subject: "Hi {name}", Content: "Hello {name}"},
	}
}

func TestProcessJobReportsEmailSent(t *testing.T) {
	sender := &stubSender{}
	reporter := &stubReporter{}
	worker := delivery.NewWorker(sender, reporter, testLog())

	require.NoError(t, worker.ProcessJob(deliveryJob("alice@example.com")))

	assert.Equal(t, []string{"alice@example.com"}, sender.sent)
	assert.Equal(t, model.ProgressEmailSent, reporter.reports["alice@example.com"])
}

func TestProcessJobSendFailurePropagates(t *testing.T) {
	sender := &stubSender{fail: true}
	reporter := &stubReporter{}
	worker := delivery.NewWorker(sender, reporter, testLog())

	err := worker.ProcessJob(deliveryJob("alice@example.com"))
	require.Error(t, err, "the transport must see the failure so it can retry")
	assert.Empty(t, reporter.reports, "no progress reported for a failed send")
}

func TestProcessJobUnrenderableTemplateSkipsContact(t *testing.T) {
	sender := &stubSender{}
	reporter := &stubReporter{}
	worker := delivery.NewWorker(sender, reporter, testLog())

	job := deliveryJob("alice@example.com")
	job.Template.Content = "Hello {name} from {company}" // company missing from info

	require.NoError(t, worker.ProcessJob(job))
	assert.Empty(t, sender.sent, "an unrenderable message is never sent")
	assert.Equal(t, model.ProgressSkip, reporter.reports["alice@example.com"],
		"retrying cannot repair a broken template, the contact is skipped")
}

func TestProcessJobReportFailurePropagates(t *testing.T) {
	sender := &stubSender{}
	reporter := &stubReporter{err: fmt.Errorf("callback unreachable")}
	worker := delivery.NewWorker(sender, reporter, testLog())

	err := worker.ProcessJob(deliveryJob("alice@example.com"))
	require.Error(t, err)
}

func TestProcessJobRecordsAttempts(t *testing.T) {
	recorder := &stubRecorder{}
	worker := delivery.NewWorker(&stubSender{}, &stubReporter{}, testLog()).WithRecorder(recorder)

	require.NoError(t, worker.ProcessJob(deliveryJob("alice@example.com")))

	require.Len(t, recorder.records, 1)
	rec := recorder.records[0]
	assert.Equal(t, model.DeliverySent, rec.Status)
	assert.Equal(t, "Hi Alice", rec.Subject)
	assert.Equal(t, "alice@example.com", rec.Recipient)
	assert.Empty(t, rec.LastError)
}

func TestProcessJobRecordsFailureOutcome(t *testing.T) {
	recorder := &stubRecorder{}
	worker := delivery.NewWorker(&stubSender{fail: true}, &stubReporter{}, testLog()).WithRecorder(recorder)

	require.Error(t, worker.ProcessJob(deliveryJob("alice@example.com")))

	require.Len(t, recorder.records, 1)
	assert.Equal(t, model.DeliveryFailed, recorder.records[0].Status)
	assert.NotEmpty(t, recorder.records[0].LastError)
}

func TestProcessJobAuditLogIsBestEffort(t *testing.T) {
	recorder := &stubRecorder{err: fmt.Errorf("database down")}
	reporter := &stubReporter{}
	worker := delivery.NewWorker(&stubSender{}, reporter, testLog()).WithRecorder(recorder)

	require.NoError(t, worker.ProcessJob(deliveryJob("alice@example.com")),
		"a failed audit write never blocks the delivery")
	assert.Equal(t, model.ProgressEmailSent, reporter.reports["alice@example.com"])
}
