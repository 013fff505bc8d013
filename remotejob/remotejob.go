// Package remotejob encapsulates sending messages to remote services such as Pub/Sub.
package remotejob

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"attendserver/attendance"
	log "attendserver/cloudlog"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

const (
	publishTimeout = 10 * time.Second
	drainBatch     = 100
)

// sendFunc delivers one payload to the topic and waits for the result.
type sendFunc func(ctx context.Context, data []byte) error

// Publisher sends attendance events to a Pub/Sub topic. Events that could not be delivered are
// kept in the outbox and retried by Run.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	send   sendFunc
	outbox *Outbox
	wg     sync.WaitGroup
}

// New connects to Pub/Sub. outbox may be nil, in which case failed events are only logged.
func New(ctx context.Context, projectID, topicID string, outbox *Outbox) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p := &Publisher{client: client, topic: client.Topic(topicID), outbox: outbox}
	p.send = func(ctx context.Context, data []byte) error {
		result := p.topic.Publish(ctx, &pubsub.Message{
			Data:       data,
			Attributes: map[string]string{"type": attendance.EventMarked},
		})
		_, err := result.Get(ctx)
		return err
	}
	return p, nil
}

func newPublisher(send sendFunc, outbox *Outbox) *Publisher {
	return &Publisher{send: send, outbox: outbox}
}

// Notify publishes the event in the background so the request that produced it isn't held up.
func (p *Publisher) Notify(ctx context.Context, event attendance.Event) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Publish(context.Background(), event); err != nil {
			log.WithFields(logrus.Fields{"uid": event.EmployeeID, "date": event.Date}).WithError(err).Error("Dropped attendance event")
		}
	}()
}

// Publish delivers the event, falling back to the outbox. The error is non-nil only when the
// event is lost.
func (p *Publisher) Publish(ctx context.Context, event attendance.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.send(ctx, data)
	if err == nil {
		return nil
	}
	fields := logrus.Fields{"uid": event.EmployeeID, "date": event.Date}
	log.WithFields(fields).WithError(err).Warn("Publish failed")
	if p.outbox == nil {
		return err
	}
	if addErr := p.outbox.Add(attendance.EventMarked, data, err); addErr != nil {
		return addErr
	}
	log.WithFields(fields).Info("Event stored in outbox")
	return nil
}

// Drain republishes stored events and returns how many went out.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	if p.outbox == nil {
		return 0, nil
	}
	pending, err := p.outbox.Pending(drainBatch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, msg := range pending {
		sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := p.send(sendCtx, msg.Payload)
		cancel()
		if err != nil {
			if markErr := p.outbox.MarkFailed(msg.ID, err); markErr != nil {
				return sent, markErr
			}
			continue
		}
		if err := p.outbox.Remove(msg.ID); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		log.WithFields(logrus.Fields{"sent": sent, "pending": len(pending) - sent}).Info("Drained outbox")
	}
	return sent, nil
}

// Run drains the outbox on every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	if p.outbox == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil {
				log.WithError(err).Warn("Outbox drain failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close waits for in-flight events and releases the Pub/Sub client and the outbox.
func (p *Publisher) Close() {
	p.wg.Wait()
	if p.outbox != nil {
		if err := p.outbox.Close(); err != nil {
			log.WithError(err).Warn("Failed to close outbox")
		}
	}
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			log.WithError(err).Warn("Failed to close pubsub client")
		}
	}
}
