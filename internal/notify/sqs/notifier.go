package sqs

import "context"

// NotifyEngineDisabled implements collab.Notifier.
func (c *Client) NotifyEngineDisabled() {
	c.Publish(context.Background(), Event{Kind: EventEngineDisabled})
}

// NotifyAllVisitsForgotten implements collab.Notifier.
func (c *Client) NotifyAllVisitsForgotten() {
	c.Publish(context.Background(), Event{Kind: EventAllVisitsForgotten})
}

// NotifyBudgetExhausted implements collab.Notifier.
func (c *Client) NotifyBudgetExhausted(site string, epoch int64) {
	c.Publish(context.Background(), Event{Kind: EventBudgetExhausted, Site: site, Epoch: epoch})
}
