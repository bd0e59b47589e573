package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	err := p.Publish(context.Background(), "PUB1", models.DomainEvent{Type: models.DomainPaymentRecorded, ReceiptID: "abc"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "PUB1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, models.DomainPaymentRecorded, string(msg.Headers[0].Value))

	var got models.DomainEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "abc", got.ReceiptID)
}

func TestKafkaWriterSplitsBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, splitBrokers(" kafka-1:9092, kafka-2:9092,"))
	assert.Empty(t, splitBrokers(""))

	w := NewKafkaWriter("kafka-1:9092,kafka-2:9092")
	defer w.Close()
	assert.True(t, w.Async)
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	assert.Equal(t, PaymentEventsTopic, w.Topic)
}

type fakeRequester struct {
	subject string
	data    []byte
	reply   []byte
	err     error
}

func (r *fakeRequester) RequestWithContext(_ context.Context, subj string, data []byte) (*nats.Msg, error) {
	r.subject = subj
	r.data = data
	if r.err != nil {
		return nil, r.err
	}
	return &nats.Msg{Data: r.reply}, nil
}

func testInvoice() *models.LocalInvoice {
	return &models.LocalInvoice{
		InvoiceID: 7,
		PublicID:  "PUB1",
		UserID:    3,
		UserEmail: "payer@example.com",
		Products:  []models.Product{{Title: "Gold"}, {Title: "Silver"}},
	}
}

func TestNatsNotifierSends(t *testing.T) {
	r := &fakeRequester{reply: []byte(`{"status":"sent"}`)}
	n := NewNatsNotifier(r, "Members", time.Second)

	require.NoError(t, n.SendRefundLink(context.Background(), testInvoice(), "https://pay.example/pp1"))
	assert.Equal(t, RefundLinkSubject, r.subject)

	var email RefundLinkEmail
	require.NoError(t, json.Unmarshal(r.data, &email))
	assert.Equal(t, "payer@example.com", email.To)
	assert.Equal(t, "Gold, Silver", email.ProductTitle)
	assert.Equal(t, "https://pay.example/pp1", email.RefundLink)
}

func TestNatsNotifierFailures(t *testing.T) {
	n := NewNatsNotifier(&fakeRequester{err: nats.ErrNoResponders}, "Members", time.Second)
	err := n.SendRefundLink(context.Background(), testInvoice(), "link")
	assert.True(t, errors.Is(err, nats.ErrNoResponders))

	n = NewNatsNotifier(&fakeRequester{reply: []byte(`{"status":"failed","error":"no template"}`)}, "Members", time.Second)
	err = n.SendRefundLink(context.Background(), testInvoice(), "link")
	assert.ErrorContains(t, err, "no template")
}
