package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// MeterReading is one meter's consumption for the billing period
type MeterReading struct {
	Name           string  `json:"name"`
	ConsumptionKWh float64 `json:"consumption_kwh"`
}

// BillShare is one meter's portion of the period total
type BillShare struct {
	Name           string  `json:"name"`
	ConsumptionKWh float64 `json:"consumption_kwh"`
	AmountCents    int64   `json:"amount_cents"`
}

// BillSplit is the full allocation of a period's electricity bill
type BillSplit struct {
	TotalCents          int64       `json:"total_cents"`
	TotalConsumptionKWh float64     `json:"total_consumption_kwh"`
	Shares              []BillShare `json:"shares"`
}

// billService splits a shared electricity bill across meters and can mail the
// result out as a report
type billService struct {
	mailer Mailer
	logger *zap.Logger
}

// NewBillService creates a new bill service
func NewBillService(mailer Mailer, logger *zap.Logger) *billService {
	return &billService{
		mailer: mailer,
		logger: logger,
	}
}

// Split allocates the period total across the meters in proportion to their
// consumption. Amounts are cent-exact: each share is floored and the leftover
// cents go to the largest fractional remainders, so the shares always sum to
// the total.
func (s *billService) Split(totalCents int64, readings []MeterReading) (*BillSplit, error) {
	if totalCents < 0 {
		return nil, fmt.Errorf("bill total cannot be negative")
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("at least one meter reading is required")
	}

	var totalConsumption float64
	seen := make(map[string]bool, len(readings))
	for _, r := range readings {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("meter name cannot be empty")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate meter name: %s", name)
		}
		seen[name] = true

		if r.ConsumptionKWh < 0 {
			return nil, fmt.Errorf("consumption for %s cannot be negative", name)
		}
		totalConsumption += r.ConsumptionKWh
	}
	if totalConsumption == 0 {
		return nil, fmt.Errorf("total consumption must be greater than zero")
	}

	type pending struct {
		index     int
		remainder float64
	}

	split := &BillSplit{
		TotalCents:          totalCents,
		TotalConsumptionKWh: totalConsumption,
		Shares:              make([]BillShare, len(readings)),
	}

	var allocated int64
	remainders := make([]pending, 0, len(readings))
	for i, r := range readings {
		exact := float64(totalCents) * r.ConsumptionKWh / totalConsumption
		floor := int64(exact)
		split.Shares[i] = BillShare{
			Name:           strings.TrimSpace(r.Name),
			ConsumptionKWh: r.ConsumptionKWh,
			AmountCents:    floor,
		}
		allocated += floor
		remainders = append(remainders, pending{index: i, remainder: exact - float64(floor)})
	}

	// Hand out the leftover cents by largest remainder, input order on ties
	sort.SliceStable(remainders, func(a, b int) bool {
		return remainders[a].remainder > remainders[b].remainder
	})
	for i := int64(0); i < totalCents-allocated; i++ {
		split.Shares[remainders[i%int64(len(remainders))].index].AmountCents++
	}

	return split, nil
}

// EmailReport sends the split to the given recipients as a plain-text report
func (s *billService) EmailReport(ctx context.Context, to []string, period string, split *BillSplit) error {
	if len(to) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	subject := fmt.Sprintf("Electricity bill split for %s", period)
	body := formatBillReport(period, split)

	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.logger.Error("failed to send bill report", zap.Strings("to", to), zap.Error(err))
		return fmt.Errorf("failed to send bill report: %w", err)
	}

	s.logger.Info("bill report sent", zap.Strings("to", to), zap.String("period", period))
	return nil
}

func formatBillReport(period string, split *BillSplit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Electricity bill split for %s\n\n", period)
	fmt.Fprintf(&b, "Total: %.2f (%.1f kWh)\n\n", float64(split.TotalCents)/100, split.TotalConsumptionKWh)
	for _, share := range split.Shares {
		fmt.Fprintf(&b, "%-24s %8.1f kWh  %10.2f\n", share.Name, share.ConsumptionKWh, float64(share.AmountCents)/100)
	}
	return b.String()
}
