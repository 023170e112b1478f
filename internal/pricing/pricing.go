package pricing

// PieceType is the quality/complexity tier of a printed part.
type PieceType string

const (
	PiecePrototype  PieceType = "Prototype"
	PieceFunctional PieceType = "Functional"
	PiecePrecision  PieceType = "Precision"
	PieceAesthetic  PieceType = "Aesthetic"
	PieceCritical   PieceType = "Critical"
)

// PieceTypes lists the known piece types in display order.
var PieceTypes = []PieceType{PiecePrototype, PieceFunctional, PiecePrecision, PieceAesthetic, PieceCritical}

// Typology is the physical handling category of a part.
type Typology string

const (
	TypologyStandard  Typology = "Standard"
	TypologyFragile   Typology = "Fragile"
	TypologyLargePart Typology = "LargePart"
)

// Typologies lists the known typologies in display order.
var Typologies = []Typology{TypologyStandard, TypologyFragile, TypologyLargePart}

// Delivery is how the order leaves the workshop.
type Delivery string

const (
	DeliveryPickUp   Delivery = "PickUp"
	DeliveryStandard Delivery = "Standard"
	DeliveryExpress  Delivery = "Express"
)

// Deliveries lists the known delivery modes in display order.
var Deliveries = []Delivery{DeliveryPickUp, DeliveryStandard, DeliveryExpress}

// AnalysisResult is what the model-analysis service reports for one unit.
type AnalysisResult struct {
	VolumeMl       float64 `json:"volume_ml"`
	PrintTimeHours float64 `json:"print_time_hours"`
}

// OrderConfig holds the options selected by the customer.
type OrderConfig struct {
	Material  string    `json:"material"`
	PieceType PieceType `json:"piece_type"`
	Typology  Typology  `json:"typology"`
	Quantity  int       `json:"quantity"`
	Delivery  Delivery  `json:"delivery"`
}

// Breakdown contains every intermediate value of the pricing calculation.
type Breakdown struct {
	MaterialCost      float64 `json:"material_cost"`
	MachineCost       float64 `json:"machine_cost"`
	BaseCost          float64 `json:"base_cost"`
	PostProcessing    float64 `json:"post_processing"`
	Finishing         float64 `json:"finishing"`
	Subtotal          float64 `json:"subtotal"`
	MarkupFactor      float64 `json:"markup_factor"`
	MarkedUp          float64 `json:"marked_up"`
	PieceTypeFactor   float64 `json:"piece_type_factor"`
	TypeAdjusted      float64 `json:"type_adjusted"`
	TypologyFactor    float64 `json:"typology_factor"`
	UnitPrice         float64 `json:"unit_price"`
	Quantity          int     `json:"quantity"`
	TotalPieces       float64 `json:"total_pieces"`
	Packaging         float64 `json:"packaging"`
	Delivery          float64 `json:"delivery"`
	TotalExcludingTax float64 `json:"total_excluding_tax"`
	Tax               float64 `json:"tax"`
	TotalIncludingTax float64 `json:"total_including_tax"`
}

// Line is a named money value of a breakdown.
type Line struct {
	Key   string
	Label string
	Value float64
}

// Lines returns the monetary lines of the breakdown in presentation order.
func (b Breakdown) Lines() []Line {
	return []Line{
		{"material_cost", "Matière", b.MaterialCost},
		{"machine_cost", "Machine", b.MachineCost},
		{"post_processing", "Post-traitement", b.PostProcessing},
		{"finishing", "Finition", b.Finishing},
		{"subtotal", "Coût de revient", b.Subtotal},
		{"type_adjusted", "Prix après type de pièce", b.TypeAdjusted},
		{"unit_price", "Prix unitaire HT", b.UnitPrice},
		{"total_pieces", "Total pièces HT", b.TotalPieces},
		{"packaging", "Emballage", b.Packaging},
		{"delivery", "Livraison", b.Delivery},
		{"total_excluding_tax", "Total HT", b.TotalExcludingTax},
		{"tax", "TVA", b.Tax},
		{"total_including_tax", "Total TTC", b.TotalIncludingTax},
	}
}

// Compute prices one order line. It performs no bounds checking on the
// analysis or quantity; callers validate at the boundary with ValidateOrder.
func Compute(analysis AnalysisResult, cfg OrderConfig, materials MaterialCatalog, rules Rules) (Breakdown, error) {
	material, ok := materials.Material(cfg.Material)
	if !ok {
		return Breakdown{}, &MaterialNotFoundError{Name: cfg.Material}
	}

	pieceFactor, err := rules.pieceTypeFactor(cfg.PieceType)
	if err != nil {
		return Breakdown{}, err
	}
	typologyFactor, err := rules.typologyFactor(cfg.Typology)
	if err != nil {
		return Breakdown{}, err
	}
	delivery, err := rules.deliveryCost(cfg.Delivery)
	if err != nil {
		return Breakdown{}, err
	}

	pricePerMl := material.PricePerLiter / 1000.0
	materialCost := analysis.VolumeMl * pricePerMl * (1.0 + material.WastePercent)
	machineCost := analysis.PrintTimeHours * rules.MachineCostPerHour

	baseCost := materialCost + machineCost
	postProcessing := baseCost * rules.PostProcessingRate
	finishing := (baseCost + postProcessing) * rules.FinishingRate
	subtotal := baseCost + postProcessing + finishing

	markupFactor := rules.MarkupFactor(analysis.VolumeMl)
	markedUp := subtotal * markupFactor
	typeAdjusted := markedUp * pieceFactor
	unitPrice := typeAdjusted * typologyFactor

	totalPieces := unitPrice * float64(cfg.Quantity)
	totalExcludingTax := totalPieces + rules.PackagingCost + delivery
	tax := totalExcludingTax * rules.TaxRate

	return Breakdown{
		MaterialCost:      materialCost,
		MachineCost:       machineCost,
		BaseCost:          baseCost,
		PostProcessing:    postProcessing,
		Finishing:         finishing,
		Subtotal:          subtotal,
		MarkupFactor:      markupFactor,
		MarkedUp:          markedUp,
		PieceTypeFactor:   pieceFactor,
		TypeAdjusted:      typeAdjusted,
		TypologyFactor:    typologyFactor,
		UnitPrice:         unitPrice,
		Quantity:          cfg.Quantity,
		TotalPieces:       totalPieces,
		Packaging:         rules.PackagingCost,
		Delivery:          delivery,
		TotalExcludingTax: totalExcludingTax,
		Tax:               tax,
		TotalIncludingTax: totalExcludingTax + tax,
	}, nil
}
