package pricing

import "slices"

// ValidateOrder checks analysis and order options before they reach Compute.
// Enum fields must be known values; maxQuantity <= 0 disables the upper bound.
func ValidateOrder(analysis AnalysisResult, cfg OrderConfig, maxQuantity int) error {
	var errs ValidationErrors

	if !positive(analysis.VolumeMl) {
		errs = append(errs, FieldError{"volume_ml", "must be a positive number"})
	}
	if !positive(analysis.PrintTimeHours) {
		errs = append(errs, FieldError{"print_time_hours", "must be a positive number"})
	}
	if cfg.Material == "" {
		errs = append(errs, FieldError{"material", "is required"})
	}
	if !slices.Contains(PieceTypes, cfg.PieceType) {
		errs = append(errs, FieldError{"piece_type", "unknown value " + string(cfg.PieceType)})
	}
	if !slices.Contains(Typologies, cfg.Typology) {
		errs = append(errs, FieldError{"typology", "unknown value " + string(cfg.Typology)})
	}
	if !slices.Contains(Deliveries, cfg.Delivery) {
		errs = append(errs, FieldError{"delivery", "unknown value " + string(cfg.Delivery)})
	}
	if cfg.Quantity < 1 {
		errs = append(errs, FieldError{"quantity", "must be at least 1"})
	} else if maxQuantity > 0 && cfg.Quantity > maxQuantity {
		errs = append(errs, FieldError{"quantity", "exceeds the maximum per order"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
