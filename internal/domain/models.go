package domain

import "time"

type Unit string

const (
	UnitMass   Unit = "mass"
	UnitVolume Unit = "volume"
	UnitCount  Unit = "count"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitMass, UnitVolume, UnitCount:
		return true
	}
	return false
}

type PurchaseBatch struct {
	ID               string    `json:"id"`
	PurchaseDate     time.Time `json:"purchase_date"`
	BuyPrice         float64   `json:"buy_price"`
	OriginalQuantity float64   `json:"original_quantity"`
	CurrentQuantity  float64   `json:"current_quantity"`
	UnitPrice        float64   `json:"unit_price"`
	Supplier         string    `json:"supplier,omitempty"`
}

// Ingredient quantities are kept in the base unit of its dimension:
// grams for mass, millilitres for volume, pieces for count.
type Ingredient struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Unit             Unit            `json:"unit"`
	TotalQuantity    float64         `json:"total_quantity"`
	AverageUnitPrice float64         `json:"average_unit_price"`
	Batches          []PurchaseBatch `json:"batches"`
	MaxQuantity      float64         `json:"max_quantity,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type IngredientCreateRequest struct {
	Name            string  `json:"name"`
	Unit            string  `json:"unit"`
	InitialQuantity float64 `json:"initial_quantity"`
	InitialCost     float64 `json:"initial_cost"`
	MaxQuantity     float64 `json:"max_quantity"`
}

// PurchaseRequest.Unit is a display unit (kg, g, l, ml, un, dz); empty means base unit.
type PurchaseRequest struct {
	Quantity     float64    `json:"quantity"`
	Unit         string     `json:"unit,omitempty"`
	BuyPrice     float64    `json:"buy_price"`
	Supplier     string     `json:"supplier,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
}

type ProductionMode string

const (
	ModeIndividual ProductionMode = "individual"
	ModeBatch      ProductionMode = "batch"
)

type RecipeLine struct {
	IngredientID string  `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
}

// Production holds only the inputs of the cost model and the last committed
// unit price; derived costs come from costing.Evaluate.
type Production struct {
	Mode             ProductionMode `json:"mode"`
	YieldQuantity    int            `json:"yield_quantity"`
	MarginPercent    float64        `json:"margin_percent"`
	UnitSellingPrice float64        `json:"unit_selling_price"`
	ProducedQuantity int            `json:"produced_quantity"`
}

type Product struct {
	UID         string       `json:"uid"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Ingredients []RecipeLine `json:"ingredients"`
	Production  Production   `json:"production"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name             string         `json:"name"`
	Category         string         `json:"category"`
	Ingredients      []RecipeLine   `json:"ingredients"`
	Mode             ProductionMode `json:"mode"`
	YieldQuantity    int            `json:"yield_quantity"`
	MarginPercent    *float64       `json:"margin_percent,omitempty"`
	UnitSellingPrice float64        `json:"unit_selling_price"`
}

type ProductUpdateRequest struct {
	Name             *string         `json:"name,omitempty"`
	Category         *string         `json:"category,omitempty"`
	Ingredients      []RecipeLine    `json:"ingredients,omitempty"`
	Mode             *ProductionMode `json:"mode,omitempty"`
	YieldQuantity    *int            `json:"yield_quantity,omitempty"`
	MarginPercent    *float64        `json:"margin_percent,omitempty"`
	UnitSellingPrice *float64        `json:"unit_selling_price,omitempty"`
}

type ProductCosting struct {
	ProductUID           string         `json:"product_uid"`
	Mode                 ProductionMode `json:"mode"`
	YieldQuantity        int            `json:"yield_quantity"`
	TotalCost            float64        `json:"total_cost"`
	UnitCost             float64        `json:"unit_cost"`
	MarginPercent        float64        `json:"margin_percent"`
	SuggestedPrice       float64        `json:"suggested_price"`
	UnitSellingPrice     float64        `json:"unit_selling_price"`
	RealizedMargin       float64        `json:"realized_margin"`
	MaxProducibleBatches int            `json:"max_producible_batches"`
}

type ProductionRequest struct {
	Count int `json:"count"`
}

type IngredientConsumption struct {
	IngredientID string  `json:"ingredient_id"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
}

type ProductionResult struct {
	ProductUID       string                  `json:"product_uid"`
	Batches          int                     `json:"batches"`
	UnitsProduced    int                     `json:"units_produced"`
	ProducedQuantity int                     `json:"produced_quantity"`
	Consumed         []IngredientConsumption `json:"consumed"`
	ProducedAt       time.Time               `json:"produced_at"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
)

var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix}

func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Discount struct {
	Type  DiscountType `json:"type"`
	Value float64      `json:"value"`
}

type Payment struct {
	Method   PaymentMethod `json:"method"`
	Discount *Discount     `json:"discount,omitempty"`
}

type SaleRequest struct {
	Cart    []CartItem `json:"cart"`
	Payment Payment    `json:"payment"`
}

type StockCheck struct {
	Valid              bool     `json:"valid"`
	MissingIngredients []string `json:"missing_ingredients"`
}

// SaleItem.Product is a snapshot taken at commit time.
type SaleItem struct {
	Product   Product `json:"product"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type SellingResume struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Discount      *Discount     `json:"discount,omitempty"`
	DiscountValue float64       `json:"discount_value"`
	FeePercent    float64       `json:"fee_percent"`
	FeeAmount     float64       `json:"fee_amount"`
	Subtotal      float64       `json:"subtotal"`
	TotalValue    float64       `json:"total_value"`
}

type Sale struct {
	ID            string        `json:"id"`
	Date          time.Time     `json:"date"`
	Items         []SaleItem    `json:"items"`
	SellingResume SellingResume `json:"selling_resume"`
	CreatedBy     string        `json:"created_by,omitempty"`
}

func (s Sale) UnitsSold() int {
	units := 0
	for _, item := range s.Items {
		units += item.Quantity
	}
	return units
}

type Recurrence string

const (
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceAnnual  Recurrence = "annual"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceDaily   Recurrence = "daily"
)

type FixedCost struct {
	Name       string     `json:"name"`
	Amount     float64    `json:"amount"`
	Recurrence Recurrence `json:"recurrence"`
}

type VariableCost struct {
	Name              string  `json:"name"`
	Percentage        float64 `json:"percentage"`
	FixedValuePerUnit float64 `json:"fixed_value_per_unit"`
}

type FinanceSummary struct {
	TotalRevenue      float64 `json:"total_revenue"`
	TotalVariableCost float64 `json:"total_variable_cost"`
	TotalFixedCost    float64 `json:"total_fixed_cost"`
	GrossProfit       float64 `json:"gross_profit"`
	NetProfit         float64 `json:"net_profit"`
	MarginPercent     float64 `json:"margin_percent"`
	ValueToSave       float64 `json:"value_to_save"`
	BreakEvenRevenue  float64 `json:"break_even_revenue"`
}

type FinanceSummaryRequest struct {
	Sales          []Sale         `json:"sales"`
	FixedCosts     []FixedCost    `json:"fixed_costs"`
	VariableCosts  []VariableCost `json:"variable_costs"`
	ReservePercent *float64       `json:"reserve_percent,omitempty"`
}

type PaymentBreakdown struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Sales         int64         `json:"sales"`
	TotalValue    float64       `json:"total_value"`
	FeeAmount     float64       `json:"fee_amount"`
}

type ProductBreakdown struct {
	ProductUID string  `json:"product_uid"`
	Name       string  `json:"name"`
	Units      int64   `json:"units"`
	Revenue    float64 `json:"revenue"`
}

type FinanceReport struct {
	From      time.Time          `json:"from"`
	To        time.Time          `json:"to"`
	Sales     int64              `json:"sales"`
	UnitsSold int64              `json:"units_sold"`
	Summary   FinanceSummary     `json:"summary"`
	ByPayment []PaymentBreakdown `json:"by_payment"`
	ByProduct []ProductBreakdown `json:"by_product"`
}

type Settings struct {
	FixedCosts           []FixedCost    `json:"fixed_costs"`
	VariableCosts        []VariableCost `json:"variable_costs"`
	ReservePercent       float64        `json:"reserve_percent"`
	DefaultMarginPercent float64        `json:"default_margin_percent"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LowStockAlert struct {
	IngredientID  string  `json:"ingredient_id"`
	Name          string  `json:"name"`
	TotalQuantity float64 `json:"total_quantity"`
	MaxQuantity   float64 `json:"max_quantity"`
	Ratio         float64 `json:"ratio"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
