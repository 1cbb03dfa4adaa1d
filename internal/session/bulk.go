package session

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/wppbridge/internal/delivery"
)

// BulkItem is one recipient with its own message. An image wins over a
// document, which wins over text.
type BulkItem struct {
	Recipient string `json:"phone"`
	Text      string `json:"message,omitempty"`
	Image     *Media `json:"image,omitempty"`
	Document  *Media `json:"document,omitempty"`
}

// BulkOptions paces a bulk job. Zero values take the scheduler defaults.
type BulkOptions struct {
	delivery.Options
	TypingTime time.Duration
	Footer     string
}

// Broadcast sends one message to every recipient.
func (c *Controller) Broadcast(ctx context.Context, recipients []string, message BulkItem, opts BulkOptions) (delivery.Summary, error) {
	if len(recipients) == 0 {
		return delivery.Summary{}, invalid("Recipients array is required")
	}
	items := make([]BulkItem, 0, len(recipients))
	for _, r := range recipients {
		it := message
		it.Recipient = r
		items = append(items, it)
	}
	return c.Bulk(ctx, items, opts)
}

// Bulk sends per-recipient messages through the delivery scheduler. Partial
// failures are reported in the summary, never as an error.
func (c *Controller) Bulk(ctx context.Context, items []BulkItem, opts BulkOptions) (delivery.Summary, error) {
	if _, err := c.requireEngine(); err != nil {
		return delivery.Summary{}, err
	}
	if len(items) == 0 {
		return delivery.Summary{}, invalid("Messages array is required")
	}
	typing := opts.TypingTime
	if typing == 0 {
		typing = delivery.DefaultTypingTime
	}
	send := SendOptions{TypingTime: typing, Footer: opts.Footer}

	queue := make([]delivery.Item, 0, len(items))
	for _, it := range items {
		queue = append(queue, delivery.Item{
			Recipient: it.Recipient,
			Payload:   bulkPayload{item: it, opts: send},
		})
	}
	return c.scheduler.Run(ctx, queue, opts.Options), nil
}

type bulkPayload struct {
	item BulkItem
	opts SendOptions
}

// deliveryTarget adapts a Controller to the scheduler.
type deliveryTarget struct {
	c *Controller
}

func (t deliveryTarget) Deliver(ctx context.Context, jobID string, item delivery.Item) (delivery.Sent, error) {
	p, ok := item.Payload.(bulkPayload)
	if !ok {
		return delivery.Sent{}, errors.New("unsupported bulk payload")
	}
	opts := p.opts
	opts.jobID = jobID

	var (
		res SendResult
		err error
	)
	switch {
	case p.item.Image != nil:
		res, err = t.c.SendImage(ctx, item.Recipient, *p.item.Image, opts)
	case p.item.Document != nil:
		res, err = t.c.SendDocument(ctx, item.Recipient, *p.item.Document, opts)
	default:
		res, err = t.c.SendText(ctx, item.Recipient, p.item.Text, opts)
	}
	if err != nil {
		return delivery.Sent{}, err
	}
	return delivery.Sent{MessageID: res.MessageID, Timestamp: res.unixMilli}, nil
}

func (t deliveryTarget) IsRegistered(ctx context.Context, recipient string) (bool, error) {
	reg, err := t.c.IsRegistered(ctx, recipient)
	if err != nil {
		return false, err
	}
	return reg.IsRegistered, nil
}
