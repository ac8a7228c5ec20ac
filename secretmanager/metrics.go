// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package secretmanager

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tochemey/dtoken/secretmanager"

// metrics groups the instruments a Manager records
type metrics struct {
	issued         metric.Int64Counter
	renewed        metric.Int64Counter
	cancelled      metric.Int64Counter
	verifyFailures metric.Int64Counter
	outstanding    metric.Int64ObservableGauge
	masterKeys     metric.Int64ObservableGauge
	registration   metric.Registration
}

func newMetrics(provider metric.MeterProvider, m *Manager) (*metrics, error) {
	meter := provider.Meter(instrumentationName)
	out := new(metrics)

	var err error
	if out.issued, err = meter.Int64Counter("dtoken.tokens.issued",
		metric.WithDescription("The number of delegation tokens issued")); err != nil {
		return nil, fmt.Errorf("failed to create issued tokens instrument: %w", err)
	}

	if out.renewed, err = meter.Int64Counter("dtoken.tokens.renewed",
		metric.WithDescription("The number of delegation tokens renewed")); err != nil {
		return nil, fmt.Errorf("failed to create renewed tokens instrument: %w", err)
	}

	if out.cancelled, err = meter.Int64Counter("dtoken.tokens.cancelled",
		metric.WithDescription("The number of delegation tokens cancelled")); err != nil {
		return nil, fmt.Errorf("failed to create cancelled tokens instrument: %w", err)
	}

	if out.verifyFailures, err = meter.Int64Counter("dtoken.tokens.verify_failures",
		metric.WithDescription("The number of token passwords that failed verification")); err != nil {
		return nil, fmt.Errorf("failed to create verify failures instrument: %w", err)
	}

	if out.outstanding, err = meter.Int64ObservableGauge("dtoken.tokens.outstanding",
		metric.WithDescription("The number of outstanding delegation tokens")); err != nil {
		return nil, fmt.Errorf("failed to create outstanding tokens instrument: %w", err)
	}

	if out.masterKeys, err = meter.Int64ObservableGauge("dtoken.master_keys",
		metric.WithDescription("The number of live master keys")); err != nil {
		return nil, fmt.Errorf("failed to create master keys instrument: %w", err)
	}

	out.registration, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		stats := m.Stats()
		observer.ObserveInt64(out.outstanding, int64(stats.OutstandingTokens))
		observer.ObserveInt64(out.masterKeys, int64(stats.MasterKeys))
		return nil
	}, out.outstanding, out.masterKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics callback: %w", err)
	}
	return out, nil
}
