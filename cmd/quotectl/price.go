package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
)

type priceOptions struct {
	rulesFile string
	volume    float64
	hours     float64
	order     pricing.OrderConfig
	pieceType string
	typology  string
	delivery  string
	strict    bool
}

type priceOutput struct {
	Analysis   pricing.AnalysisResult `json:"analysis"`
	Order      pricing.OrderConfig    `json:"order"`
	Currency   string                 `json:"currency"`
	Breakdown  pricing.Breakdown      `json:"breakdown"`
	TotalCents int64                  `json:"total_cents"`
}

func newPriceCmd() *cobra.Command {
	var opts priceOptions

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price one order line and print the breakdown as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrice(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.rulesFile, "rules", "", "rules file (.yaml, .json, .toml or .xlsx); built-in defaults when empty")
	f.Float64Var(&opts.volume, "volume", 0, "model volume in ml")
	f.Float64Var(&opts.hours, "hours", 0, "print time in hours")
	f.StringVar(&opts.order.Material, "material", "", "material name")
	f.StringVar(&opts.pieceType, "piece-type", string(pricing.PiecePrototype), "piece type")
	f.StringVar(&opts.typology, "typology", string(pricing.TypologyStandard), "typology")
	f.IntVar(&opts.order.Quantity, "quantity", 1, "number of pieces")
	f.StringVar(&opts.delivery, "delivery", string(pricing.DeliveryPickUp), "delivery mode (PickUp, Standard, Express)")
	f.BoolVar(&opts.strict, "strict", false, "fail on factors missing from the rules")
	_ = cmd.MarkFlagRequired("volume")
	_ = cmd.MarkFlagRequired("hours")
	_ = cmd.MarkFlagRequired("material")

	return cmd
}

func runPrice(cmd *cobra.Command, opts priceOptions) error {
	bundle, err := loadBundle(opts.rulesFile)
	if err != nil {
		return err
	}
	rules := bundle.Rules
	if opts.strict {
		rules.OnUnknownFactor = pricing.RejectUnknownFactor
	}
	materials, err := bundle.Catalog()
	if err != nil {
		return err
	}

	analysis := pricing.AnalysisResult{VolumeMl: opts.volume, PrintTimeHours: opts.hours}
	order := opts.order
	order.PieceType = pricing.PieceType(opts.pieceType)
	order.Typology = pricing.Typology(opts.typology)
	order.Delivery = pricing.Delivery(opts.delivery)

	if err := pricing.ValidateOrder(analysis, order, 0); err != nil {
		return err
	}
	breakdown, err := pricing.Compute(analysis, order, materials, rules)
	if err != nil {
		return fmt.Errorf("compute price: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(priceOutput{
		Analysis:   analysis,
		Order:      order,
		Currency:   rules.Currency,
		Breakdown:  breakdown,
		TotalCents: payments.AmountCents(breakdown.TotalIncludingTax),
	})
}
