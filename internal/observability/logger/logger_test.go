package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/studioledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLedgerSamplerKeepsUnsampledLoggers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(newLedgerSampler(core, Config{
		SamplingInitial:    1,
		SamplingThereafter: 1000,
		Unsampled:          []string{"payment"},
	}))

	payments := log.Named("payment.service").With(zap.String("invoice_id", "42"))
	taxes := log.Named("tax.service")
	for i := 0; i < 5; i++ {
		payments.Info("payment recorded")
		taxes.Info("tax rate listed")
	}
	log.Named("payments").Info("payment recorded")

	byName := map[string]int{}
	for _, entry := range logs.All() {
		byName[entry.LoggerName]++
	}
	assert.Equal(t, map[string]int{"payment.service": 5, "tax.service": 1, "payments": 1}, byName)
	assert.Equal(t, "42", logs.All()[0].ContextMap()["invoice_id"])
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithActor(ctx, "staff", "17")
	WithContext(ctx, zap.New(core)).Info("invoice issued")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "staff", fields["actor_type"])
	assert.Equal(t, "17", fields["actor_id"])
	assert.NotContains(t, fields, "trace_id")
}
