package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
)

// Event subjects for catalog import lifecycle
const (
	SubjectImportStarted   = "catalog.import.started"
	SubjectImportCompleted = "catalog.import.completed"
	SubjectImportFailed    = "catalog.import.failed"
	SubjectImportCancelled = "catalog.import.cancelled"
)

// ImportEvent is the payload published on every lifecycle subject.
type ImportEvent struct {
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	JobID      string    `json:"jobId"`
	FileName   string    `json:"fileName"`
	Total      int       `json:"total,omitempty"`
	Successful int       `json:"successful,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher publishes catalog import events over NATS. A nil Publisher is
// valid and publishes nothing, so callers never have to branch on config.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS. An empty URL disables events and returns a
// nil publisher without error.
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("catalog-import-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:   conn,
		logger: logger.WithField("component", "catalog-events"),
	}, nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

// PublishImportStarted publishes a catalog.import.started event
func (p *Publisher) PublishImportStarted(job *models.ImportJob) {
	event := p.buildEvent(SubjectImportStarted, job)
	p.publish(SubjectImportStarted, event)
}

// PublishImportCompleted publishes a catalog.import.completed event
func (p *Publisher) PublishImportCompleted(job *models.ImportJob, report *models.ImportReport) {
	event := p.buildEvent(SubjectImportCompleted, job)
	if report != nil {
		event.Total = report.Total
		event.Successful = report.Successful
		event.Failed = report.Failed
	}
	p.publish(SubjectImportCompleted, event)
}

// PublishImportFailed publishes a catalog.import.failed event
func (p *Publisher) PublishImportFailed(job *models.ImportJob, jobErr error) {
	event := p.buildEvent(SubjectImportFailed, job)
	if jobErr != nil {
		event.Error = jobErr.Error()
	}
	p.publish(SubjectImportFailed, event)
}

// PublishImportCancelled publishes a catalog.import.cancelled event
func (p *Publisher) PublishImportCancelled(job *models.ImportJob) {
	event := p.buildEvent(SubjectImportCancelled, job)
	p.publish(SubjectImportCancelled, event)
}

func (p *Publisher) buildEvent(eventType string, job *models.ImportJob) *ImportEvent {
	return &ImportEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		JobID:     job.ID.String(),
		FileName:  job.FileName,
		Timestamp: time.Now().UTC(),
	}
}

// publish fires and logs; events are best-effort and never fail the job.
func (p *Publisher) publish(subject string, event *ImportEvent) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal import event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject": subject,
			"jobId":   event.JobID,
		}).WithError(err).Error("Failed to publish import event")
		return
	}
	p.logger.WithFields(logrus.Fields{
		"subject": subject,
		"jobId":   event.JobID,
	}).Info("Import event published successfully")
}
