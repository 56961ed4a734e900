package messaging

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestHeaderCarrier(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "existing", Value: []byte("1")}}}
	carrier := carrierFor(&msg)

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("existing", "2")

	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Equal(t, "2", carrier.Get("existing"))
	assert.Empty(t, carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"existing", "traceparent"}, carrier.Keys())
	assert.Len(t, msg.Headers, 2)
}
