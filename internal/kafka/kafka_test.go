package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_PublishKeysByDocument(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "12" {
			return errors.New("unexpected key " + string(key))
		}
		body, _ := msg.Value.Encode()
		var ev DocumentEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return err
		}
		if ev.Type != EventDocumentProcessed || ev.ChunkCount != 5 || ev.Timestamp.IsZero() {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := NewProducerFromClient(sp, "document.events")
	err := p.Publish(context.Background(), DocumentEvent{
		Type:        EventDocumentProcessed,
		DocumentID:  12,
		ClassroomID: 7,
		Status:      "processed",
		ChunkCount:  5,
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFromClient(sp, "document.events")
	err := p.Publish(context.Background(), DocumentEvent{Type: EventDocumentFailed, DocumentID: 3})
	assert.Error(t, err)
	require.NoError(t, p.Close())
}

func TestNilProducer(t *testing.T) {
	var p *Producer
	assert.Error(t, p.Publish(context.Background(), DocumentEvent{}))
	assert.NoError(t, p.Close())
}

func TestParseReprocessMessage(t *testing.T) {
	msg, err := ParseReprocessMessage([]byte(`{"document_id": 9, "requested_by": 2}`))
	require.NoError(t, err)
	assert.Equal(t, uint(9), msg.DocumentID)
	assert.Equal(t, uint(2), msg.RequestedBy)

	_, err = ParseReprocessMessage([]byte(`{"requested_by": 2}`))
	assert.Error(t, err)
	_, err = ParseReprocessMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestDispatch(t *testing.T) {
	var seen []string
	h := &consumerGroupHandler{handlers: map[string]MessageHandler{
		"document.reprocess": func(_ context.Context, m *sarama.ConsumerMessage) error {
			seen = append(seen, string(m.Value))
			if string(m.Value) == "bad" {
				return errors.New("boom")
			}
			return nil
		},
	}}

	ctx := context.Background()
	assert.True(t, h.dispatch(ctx, &sarama.ConsumerMessage{Topic: "document.reprocess", Value: []byte("ok")}))
	assert.False(t, h.dispatch(ctx, &sarama.ConsumerMessage{Topic: "document.reprocess", Value: []byte("bad")}))
	assert.True(t, h.dispatch(ctx, &sarama.ConsumerMessage{Topic: "unknown", Value: []byte("x")}))
	assert.Equal(t, []string{"ok", "bad"}, seen)
}
