package currency

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
)

// Unit represents the display unit of a fungible token.
// Amounts are always held in the smallest indivisible unit; Decimals tells how many of
// those make up one display unit.
type Unit struct {
	Name        string
	Symbol      string
	Decimals    uint8
	Description string
}

// Registry maintains the units of the assets served by the faucet
type Registry struct {
	mu    sync.RWMutex
	units map[string]*Unit
}

// NewRegistry creates a new currency registry
func NewRegistry() *Registry {
	return &Registry{
		units: make(map[string]*Unit),
	}
}

// Register adds a new currency unit to the registry
func (r *Registry) Register(unit *Unit) (*Unit, error) {
	if unit == nil || unit.Name == "" {
		return nil, fmt.Errorf("currency unit name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	normalizedName := strings.ToUpper(unit.Name)
	if _, exists := r.units[normalizedName]; exists {
		return nil, fmt.Errorf("currency unit %s already registered", normalizedName)
	}

	r.units[normalizedName] = unit
	return unit, nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(unit *Unit) *Unit {
	u, err := r.Register(unit)
	if err != nil {
		panic(err)
	}
	return u
}

// Ensure returns the registered unit with the given name, registering it first when
// missing. An existing unit with different decimals is an error.
func (r *Registry) Ensure(name string, decimals uint8) (*Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("currency unit name cannot be empty")
	}

	unit, err := r.Get(name)
	if err == nil {
		if unit.Decimals != decimals {
			return nil, fmt.Errorf("currency unit %s already registered with %d decimals, got %d", name, unit.Decimals, decimals)
		}
		return unit, nil
	}

	return r.Register(&Unit{
		Name:        strings.ToUpper(name),
		Symbol:      name,
		Decimals:    decimals,
		Description: fmt.Sprintf("%s token", name),
	})
}

// Get retrieves a currency unit from the registry
func (r *Registry) Get(name string) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unit, exists := r.units[strings.ToUpper(name)]
	if !exists {
		return nil, fmt.Errorf("currency unit %s not found", name)
	}
	return unit, nil
}

// MustGet is like Get but panics on error
func (r *Registry) MustGet(name string) *Unit {
	unit, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return unit
}

// List returns all registered currency units ordered by name
func (r *Registry) List() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]*Unit, 0, len(r.units))
	for _, unit := range r.units {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units
}

// Parse converts a display amount such as "100" or "0.25" to base units.
func (u *Unit) Parse(amount string) (*big.Int, error) {
	return ParseAmount(amount, u.Decimals)
}

// Format renders a base-unit amount in display units.
func (u *Unit) Format(amount *big.Int) string {
	return FormatAmount(amount, u.Decimals)
}

// Float returns a lossy float64 display value, only meant for metrics.
func (u *Unit) Float(amount *big.Int) float64 {
	return ToFloat(amount, u.Decimals)
}

// String returns the string representation of the currency unit
func (u *Unit) String() string {
	return u.Symbol
}

// ParseAmount converts a non-negative decimal string expressed in display units into
// base units. More fractional digits than decimals is an error, never a silent floor.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("amount %q must be an unsigned decimal", amount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("amount %q is not a number", amount)
	}
	if hasDot && frac == "" {
		return nil, fmt.Errorf("amount %q has a trailing decimal point", amount)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("amount %q is not a number", amount)
	}

	trimmed := strings.TrimRight(frac, "0")
	if len(trimmed) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", amount, decimals)
	}

	digits := whole + trimmed + strings.Repeat("0", int(decimals)-len(trimmed))
	value, ok := new(big.Int).SetString(strings.TrimLeft(digits, "0")+"0", 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a number", amount)
	}
	// the appended "0" keeps SetString happy for all-zero input; drop it again
	return value.Div(value, big.NewInt(10)), nil
}

// FormatAmount renders a base-unit amount using the given number of decimals, without
// trailing fractional zeros.
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	neg := amount.Sign() < 0
	digits := new(big.Int).Abs(amount).String()
	if decimals > 0 {
		if len(digits) <= int(decimals) {
			digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
		}
		cut := len(digits) - int(decimals)
		whole, frac := digits[:cut], strings.TrimRight(digits[cut:], "0")
		digits = whole
		if frac != "" {
			digits += "." + frac
		}
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// ToFloat converts a base-unit amount to display units as float64
func ToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	value := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	result, _ := value.Quo(value, scale).Float64()
	return result
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Amount is a display-unit decimal kept as written, so that configured amounts are
// converted to base units exactly once the decimals of the asset are known.
type Amount string

// UnmarshalYAML accepts both quoted and bare YAML numbers and rejects anything that is
// not an unsigned decimal.
func (a *Amount) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if _, err := ParseAmount(s, maxDecimals); err != nil {
		return err
	}
	*a = Amount(strings.TrimSpace(s))
	return nil
}

// Base converts the amount to base units of a token with the given decimals.
func (a Amount) Base(decimals uint8) (*big.Int, error) {
	return ParseAmount(string(a), decimals)
}

func (a Amount) String() string {
	return string(a)
}

const maxDecimals = 255
