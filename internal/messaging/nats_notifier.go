package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

const RefundLinkSubject = "notifications.email.refund_link"

type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// RefundLinkEmail is handed to the mailer, which owns templates and delivery.
type RefundLinkEmail struct {
	Template        string   `json:"template"`
	UserID          int64    `json:"user_id"`
	To              string   `json:"to"`
	SiteTitle       string   `json:"site_title"`
	InvoicePublicID string   `json:"invoice_public_id"`
	ProductTitles   []string `json:"product_titles"`
	ProductTitle    string   `json:"product_title"`
	RefundLink      string   `json:"refund_link"`
}

type mailerReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NatsNotifier asks the mailer over request/reply, so a missing or failing
// mailer surfaces as an error instead of a silent drop.
type NatsNotifier struct {
	conn      requester
	siteTitle string
	timeout   time.Duration
}

func NewNatsNotifier(conn requester, siteTitle string, timeout time.Duration) *NatsNotifier {
	return &NatsNotifier{conn: conn, siteTitle: siteTitle, timeout: timeout}
}

func (n *NatsNotifier) SendRefundLink(ctx context.Context, invoice *models.LocalInvoice, claimLink string) error {
	titles := invoice.ProductTitles()
	payload, err := json.Marshal(RefundLinkEmail{
		Template:        "btcpay.email_refund_link",
		UserID:          invoice.UserID,
		To:              invoice.UserEmail,
		SiteTitle:       n.siteTitle,
		InvoicePublicID: invoice.PublicID,
		ProductTitles:   titles,
		ProductTitle:    strings.Join(titles, ", "),
		RefundLink:      claimLink,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg, err := n.conn.RequestWithContext(ctx, RefundLinkSubject, payload)
	if err != nil {
		return fmt.Errorf("mailer request: %w", err)
	}

	var reply mailerReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("mailer reply: %w", err)
	}
	if reply.Status != "sent" {
		return fmt.Errorf("mailer refused refund link for invoice %s: %s", invoice.PublicID, reply.Error)
	}
	return nil
}
