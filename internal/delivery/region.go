// Package delivery owns the single delivery region the shop serves: the
// accepted city, its district whitelist and the payment collection details.
package delivery

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed region.yaml
var defaultRegion []byte

type District struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	// Days is the delivery lead time, 1 or 2.
	Days int `yaml:"days" json:"days"`
}

type BankTransfer struct {
	BankName      string `yaml:"bank_name" json:"bank_name"`
	AccountNumber string `yaml:"account_number" json:"account_number"`
	AccountHolder string `yaml:"account_holder" json:"account_holder"`
}

type Wallet struct {
	Provider string `yaml:"provider" json:"provider"`
	Phone    string `yaml:"phone" json:"phone"`
}

type Region struct {
	City         string       `yaml:"city" json:"city"`
	CityAliases  []string     `yaml:"city_aliases" json:"-"`
	Districts    []District   `yaml:"districts" json:"districts"`
	BankTransfer BankTransfer `yaml:"bank_transfer" json:"bank_transfer"`
	Wallet       Wallet       `yaml:"wallet" json:"wallet"`
}

// Load reads the region from path, or the embedded default when path is empty.
func Load(path string) (*Region, error) {
	data := defaultRegion
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read delivery config: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Region, error) {
	var r Region
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse delivery config: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Region) validate() error {
	if strings.TrimSpace(r.City) == "" {
		return fmt.Errorf("delivery config: city is required")
	}
	if len(r.Districts) == 0 {
		return fmt.Errorf("delivery config: at least one district is required")
	}
	seen := make(map[string]bool, len(r.Districts))
	for _, d := range r.Districts {
		if d.Code == "" || d.Name == "" {
			return fmt.Errorf("delivery config: district code and name are required")
		}
		if d.Days < 1 || d.Days > 2 {
			return fmt.Errorf("delivery config: district %s has delivery days %d, want 1 or 2", d.Code, d.Days)
		}
		key := normalize(d.Code)
		if seen[key] {
			return fmt.Errorf("delivery config: duplicate district %s", d.Code)
		}
		seen[key] = true
	}
	return nil
}

// ServesCity reports whether city names the served region or one of its
// aliases.
func (r *Region) ServesCity(city string) bool {
	c := normalize(city)
	if c == "" {
		return false
	}
	if c == normalize(r.City) {
		return true
	}
	for _, alias := range r.CityAliases {
		if c == normalize(alias) {
			return true
		}
	}
	return false
}

// District looks a district up by code or name.
func (r *Region) District(value string) (District, bool) {
	v := normalize(value)
	if v == "" {
		return District{}, false
	}
	for _, d := range r.Districts {
		if v == normalize(d.Code) || v == normalize(d.Name) {
			return d, true
		}
	}
	return District{}, false
}

// EstimatedDelivery returns the expected delivery date for an order placed at
// placedAt, truncated to the day.
func (d District) EstimatedDelivery(placedAt time.Time) time.Time {
	y, m, day := placedAt.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, placedAt.Location()).AddDate(0, 0, d.Days)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
