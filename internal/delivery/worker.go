// internal/delivery/worker.go
package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// ProgressReporter records a contact's delivery outcome.
type ProgressReporter interface {
	ReportProgress(ref model.StageRef, address, progress string) error
}

// Recorder appends attempts to the delivery audit log. Optional; failures
// are logged and never block delivery.
type Recorder interface {
	Record(rec *model.DeliveryRecord) error
}

// Worker processes one delivery job at a time: render, send, report.
type Worker struct {
	Sender   Sender
	Reporter ProgressReporter
	Recorder Recorder
	log      *logrus.Entry
}

func NewWorker(sender Sender, reporter ProgressReporter, log *logrus.Entry) *Worker {
	return &Worker{Sender: sender, Reporter: reporter, log: log}
}

// WithRecorder attaches a delivery audit log.
func (w *Worker) WithRecorder(rec Recorder) *Worker {
	w.Recorder = rec
	return w
}

// ProcessJob renders and sends one job. Send and report failures return an
// error so the transport retries. An unrenderable template cannot succeed on
// retry, so the contact is marked Skip instead and the job is consumed.
func (w *Worker) ProcessJob(job model.DeliveryJob) error {
	subject, content, err := RenderTemplate(job.Template, job.Info)
	if err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"ref":       job.Ref.String(),
			"recipient": job.Address,
		}).Error("❌ template render failed, skipping contact")
		return w.Reporter.ReportProgress(job.Ref, job.Address, model.ProgressSkip)
	}

	if err := w.Sender.Send(job.Address, subject, content); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"ref":       job.Ref.String(),
			"recipient": job.Address,
		}).Warn("⚠️ send failed")
		w.record(job, subject, model.DeliveryFailed, err.Error())
		return err
	}
	w.record(job, subject, model.DeliverySent, "")

	if err := w.Reporter.ReportProgress(job.Ref, job.Address, model.ProgressEmailSent); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"ref":       job.Ref.String(),
			"recipient": job.Address,
		}).Warn("⚠️ progress report failed")
		return err
	}

	w.log.WithFields(logrus.Fields{
		"ref":        job.Ref.String(),
		"recipient":  job.Address,
		"message_id": job.MessageID,
	}).Info("✅ email sent")
	return nil
}

func (w *Worker) record(job model.DeliveryJob, subject, status, lastError string) {
	if w.Recorder == nil {
		return
	}
	rec := &model.DeliveryRecord{
		MessageID:  job.MessageID,
		GroupKey:   job.Ref.GroupKey,
		CampaignID: job.Ref.CampaignID,
		Stage:      job.Ref.Stage,
		Recipient:  job.Address,
		Subject:    subject,
		Status:     status,
		LastError:  lastError,
	}
	if err := w.Recorder.Record(rec); err != nil {
		w.log.WithError(err).WithField("message_id", job.MessageID).Warn("⚠️ delivery log write failed")
	}
}

// ProgressSink is the slice of the campaign manager the in-process reporter
// needs.
type ProgressSink interface {
	UpdateContactProgress(groupKey, campaignID string, stage int, address, progress string) error
}

// ManagerReporter reports progress straight into the campaign manager.
type ManagerReporter struct {
	Manager ProgressSink
}

func (r *ManagerReporter) ReportProgress(ref model.StageRef, address, progress string) error {
	return r.Manager.UpdateContactProgress(ref.GroupKey, ref.CampaignID, ref.Stage, address, progress)
}

// HTTPReporter posts progress to the server's callback endpoint. Used by the
// broker worker binary, which has no direct handle on the campaign manager.
type HTTPReporter struct {
	BaseURL string
	Client  *http.Client
}

func (r *HTTPReporter) ReportProgress(ref model.StageRef, address, progress string) error {
	endpoint := fmt.Sprintf("%s/groups/%s/campaigns/%s/stages/%d/contacts/%s/progress",
		strings.TrimRight(r.BaseURL, "/"),
		url.PathEscape(ref.GroupKey),
		url.PathEscape(ref.CampaignID),
		ref.Stage,
		url.PathEscape(address),
	)

	body, err := json.Marshal(map[string]string{"progress": progress})
	if err != nil {
		return err
	}

	resp, err := r.Client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("progress callback returned %s", resp.Status)
	}
	return nil
}
